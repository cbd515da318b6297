package wizard

import "testing"

func TestPortString(t *testing.T) {
	if got := portString(0); got != "" {
		t.Errorf("portString(0) = %q, want empty", got)
	}
	if got := portString(8388); got != "8388" {
		t.Errorf("portString(8388) = %q, want \"8388\"", got)
	}
}

func TestRequireNonEmpty(t *testing.T) {
	if err := requireNonEmpty(""); err == nil {
		t.Error("requireNonEmpty(\"\") = nil, want an error")
	}
	if err := requireNonEmpty("x"); err != nil {
		t.Errorf("requireNonEmpty(\"x\") = %v, want nil", err)
	}
}

func TestValidatePort(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"", true},
		{"not-a-number", true},
		{"0", true},
		{"65536", true},
		{"1", false},
		{"8388", false},
		{"65535", false},
	}
	for _, c := range cases {
		err := validatePort(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("validatePort(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestMethodOptionsNonEmptyAndSorted(t *testing.T) {
	opts := methodOptions()
	if len(opts) == 0 {
		t.Fatal("methodOptions() returned no options")
	}
	for i := 1; i < len(opts); i++ {
		if opts[i-1].Key > opts[i].Key {
			t.Fatalf("methodOptions() not sorted: %q before %q", opts[i-1].Key, opts[i].Key)
		}
	}
}
