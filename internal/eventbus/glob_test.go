package eventbus

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"workflow:completed", "workflow:completed", true},
		{"workflow:completed", "workflow:failed", false},
		{"workflow:*", "workflow:completed", true},
		{"workflow:*", "workflow:run:completed", false},
		{"workflow:**", "workflow:run:completed", true},
		{"workflow:**", "workflow", true},
		{"**", "anything:goes:here", true},
		{"**", "single", true},
		{"*:completed", "workflow:completed", true},
		{"*:completed", "workflow:run:completed", false},
		{"service:*:started", "service:foo:started", true},
		{"service:*:started", "service:foo:bar:started", false},
		{"a:**:z", "a:z", true},
		{"a:**:z", "a:b:c:z", true},
		{"a:**:z", "a:b:c:y", false},
	}
	for _, c := range cases {
		if got := matchPattern(c.pattern, c.name); got != c.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
