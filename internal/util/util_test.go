package util

import (
	"testing"
)

func TestContainsString(t *testing.T) {
	tests := []struct {
		name     string
		slice    []string
		item     string
		expected bool
	}{
		{
			name:     "item exists in slice",
			slice:    []string{"Accenture", "IBM", "Infosys"},
			item:     "IBM",
			expected: true,
		},
		{
			name:     "item does not exist in slice",
			slice:    []string{"Accenture", "IBM", "Infosys"},
			item:     "Wipro",
			expected: false,
		},
		{
			name:     "empty slice",
			slice:    []string{},
			item:     "Accenture",
			expected: false,
		},
		{
			name:     "case sensitive match",
			slice:    []string{"Accenture", "IBM"},
			item:     "accenture",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsString(tt.slice, tt.item)
			if result != tt.expected {
				t.Errorf("ContainsString(%v, %q) = %v, want %v", tt.slice, tt.item, result, tt.expected)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		expected      string
	}{
		{
			name:          "short string unchanged",
			input:         "AI strategy",
			maxLen:        50,
			preserveWords: false,
			expected:      "AI strategy",
		},
		{
			name:          "hard cut",
			input:         "abcdefghij",
			maxLen:        8,
			preserveWords: false,
			expected:      "abcde...",
		},
		{
			name:          "word preserving cut",
			input:         "competitor launched a new platform",
			maxLen:        20,
			preserveWords: true,
			expected:      "competitor...",
		},
		{
			name:          "zero max length",
			input:         "anything",
			maxLen:        0,
			preserveWords: false,
			expected:      "",
		},
		{
			name:          "max length below ellipsis",
			input:         "anything",
			maxLen:        2,
			preserveWords: false,
			expected:      "..",
		},
		{
			name:          "multibyte runes counted not bytes",
			input:         "日本語のテキストです",
			maxLen:        8,
			preserveWords: false,
			expected:      "日本語のテ...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen, tt.preserveWords)
			if result != tt.expected {
				t.Errorf("TruncateString(%q, %d, %v) = %q, want %q", tt.input, tt.maxLen, tt.preserveWords, result, tt.expected)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already normal", input: "ai narrative", expected: "ai narrative"},
		{name: "mixed case and padding", input: "  AI   Narrative ", expected: "ai narrative"},
		{name: "tabs and newlines", input: "AI\tnarrative\nand initiatives", expected: "ai narrative and initiatives"},
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: " \t\n ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeWhitespace(tt.input); got != tt.expected {
				t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
