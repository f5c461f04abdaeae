package episode

import "testing"

func TestParseIDs_Relative(t *testing.T) {
	c, s, n := ParseIDs("/jpplay/12-3-4.html")
	if c != "12" || s != "3" || n != "4" {
		t.Fatalf("期望 (12,3,4)，实际 (%q,%q,%q)", c, s, n)
	}
}

func TestParseIDs_NoMatch(t *testing.T) {
	for _, u := range []string{"/bad/url.html", "", "/jpplay/12-3.html", "/jpplay/a-b-c.html"} {
		c, s, n := ParseIDs(u)
		if c != "" || s != "" || n != "" {
			t.Fatalf("%q 期望三段为空，实际 (%q,%q,%q)", u, c, s, n)
		}
	}
}

func TestParseIDs_AbsoluteWithQuery(t *testing.T) {
	c, s, n := ParseIDs("https://vodjp.com/jpplay/88021-1-15.html?from=tv#p")
	if c != "88021" || s != "1" || n != "15" {
		t.Fatalf("期望 (88021,1,15)，实际 (%q,%q,%q)", c, s, n)
	}
}

func TestIDs_ValidAndPath(t *testing.T) {
	ids := Parse("/jpplay/7-2-9.html")
	if !ids.Valid() {
		t.Fatalf("期望有效")
	}
	if got := ids.Path(); got != "/jpplay/7-2-9.html" {
		t.Fatalf("期望还原路径，实际 %q", got)
	}

	bad := Parse("/jpvod/7.html")
	if bad.Valid() || bad.Path() != "" {
		t.Fatalf("期望无效，实际 %+v", bad)
	}
}
