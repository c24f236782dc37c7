package rfc2047

import "testing"

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "report.pdf", "report.pdf"},
		{"plain text is trimmed", "  report.pdf \t", "report.pdf"},
		{"base64 utf-8", "=?UTF-8?B?5LiA5pys5Lmg5a6i?=", "一本习客"},
		{"base64 lower-case charset", "=?utf-8?b?0J7RgtGH0ZHRgi5wZGY=?=", "Отчёт.pdf"},
		{"quoted printable", "=?UTF-8?Q?Hello=20World?=", "Hello World"},
		{"quoted printable multibyte", "=?UTF-8?Q?caf=C3=A9.txt?=", "café.txt"},
		{"quoted printable keeps underscores", "=?UTF-8?Q?a_b?=", "a_b"},
		{"single-byte charset", "=?ISO-8859-1?B?culzdW3pLnBkZg==?=", "résumé.pdf"},
		{"single-byte quoted printable", "=?ISO-8859-1?Q?caf=E9?=", "café"},
		{"mixed literal and encoded", "Re: =?UTF-8?Q?caf=C3=A9?= menu", "Re: café menu"},
		{"adjacent words", "=?UTF-8?Q?Hello?= =?UTF-8?Q?World?=", "Hello World"},
		{"unknown encoding passes through", "=?UTF-8?X?abc?=", "=?UTF-8?X?abc?="},
		{"bad base64 passes through", "=?UTF-8?B?***?=", "=?UTF-8?B?***?="},
		{"unterminated word is literal", "=?UTF-8?B?5LiA", "=?UTF-8?B?5LiA"},
		{"malformed escape is literal", "=?UTF-8?Q?100=ZZ?=", "100=ZZ"},
		{"base64 without padding", "=?UTF-8?B?SGk?=", "Hi"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.input); got != tt.expected {
				t.Errorf("Decode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecodeIdempotentOnPlainText(t *testing.T) {
	inputs := []string{"invoice 2024.pdf", "Quarterly report", "a=b?c.txt"}
	for _, in := range inputs {
		once := Decode(in)
		if once != in {
			t.Errorf("Decode(%q) = %q, want unchanged", in, once)
		}
		if twice := Decode(once); twice != once {
			t.Errorf("Decode(Decode(%q)) = %q, want %q", in, twice, once)
		}
	}
}
