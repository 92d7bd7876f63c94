package urlfilter

import "testing"

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts Options
		keep bool
	}{
		{"plain page", "https://example.com/about", Options{}, true},
		{"root", "https://example.com/", Options{}, true},
		{"pdf rejected", "https://example.com/brochure.pdf", Options{}, false},
		{"pdf rejected any case", "https://example.com/BROCHURE.PDF", Options{}, false},
		{"docx rejected", "https://example.com/report.docx", Options{}, false},
		{"image rejected", "https://example.com/logo.png", Options{}, false},
		{"json rejected", "https://example.com/data.json", Options{}, false},
		{"login excluded", "https://example.com/login", Options{}, false},
		{"cart excluded", "https://example.com/cart/items", Options{}, false},
		{"wp-admin excluded", "https://example.com/wp-admin/options.php", Options{}, false},
		{"api path excluded", "https://example.com/api/v1/users", Options{}, false},
		{"oauth excluded", "https://example.com/oauth/callback", Options{}, false},
		{"query rejected by default", "https://example.com/search?q=x", Options{}, false},
		{"query allowed when opted in", "https://example.com/search?q=x", Options{AllowQuery: true}, true},
		{"ftp scheme rejected", "ftp://example.com/file", Options{}, false},
		{"mailto rejected", "mailto:hi@example.com", Options{}, false},
		{"relative rejected", "/about", Options{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.url, tt.opts)
			if got.Keep != tt.keep {
				t.Errorf("Check(%q).Keep = %v (reason %q), want %v", tt.url, got.Keep, got.Reason, tt.keep)
			}
			if !got.Keep && got.Reason == "" {
				t.Error("rejected URL must carry a reason")
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	urls := []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/menu.pdf",
		"https://example.com/login",
		"https://example.com/services",
	}

	once := Apply(urls, Options{})
	twice := Apply(once, Options{})

	if len(once) != 3 {
		t.Fatalf("Apply kept %d URLs, want 3", len(once))
	}
	if len(once) != len(twice) {
		t.Fatalf("filter not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("idempotence violated at %d: %q vs %q", i, once[i], twice[i])
		}
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/About/", "https://example.com/About"},
		{"https://example.com/about#team", "https://example.com/about"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com", "https://example.com"},
		{"https://example.com/a/b/", "https://example.com/a/b"},
	}

	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
