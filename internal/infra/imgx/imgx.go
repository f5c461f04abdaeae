package imgx

import (
	"bytes"
	"errors"
	"image/jpeg"
	_ "image/png" // 站点封面偶尔是 PNG

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 部分 CDN 返回 webp
)

// DefaultCoverWidth 是封面缩略图的最大宽度（电视海报墙足够清晰）。
const DefaultCoverWidth = 360

const jpegQuality = 85

// ThumbnailJPEG 把封面等比缩放到不超过 maxWidth 的宽度，并编码为 JPEG。
//
// 约束：
// - 输入允许是 JPEG/PNG/WebP
// - 原图不比 maxWidth 宽时不放大，只重新编码
func ThumbnailJPEG(src []byte, maxWidth int) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("图片为空")
	}
	if maxWidth <= 0 {
		maxWidth = DefaultCoverWidth
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	if b.Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
