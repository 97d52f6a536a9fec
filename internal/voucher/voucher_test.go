package voucher

import "testing"

func TestExtractCardNumber(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bare 14 digit code",
			text: "12345678901234",
			want: "12345678901234",
		},
		{
			name: "bare 15 digit code",
			text: "123456789012345",
			want: "123456789012345",
		},
		{
			name: "code inside sms text",
			text: "شكرا لشرائك. رقم الكرت هو 98765432109876 صالح لغاية 2026",
			want: "98765432109876",
		},
		{
			name: "too short",
			text: "1234567890123",
			want: "",
		},
		{
			name: "too long",
			text: "1234567890123456",
			want: "",
		},
		{
			name: "phone number is not a voucher",
			text: "اتصل بالرقم 07712345678",
			want: "",
		},
		{
			name: "empty input",
			text: "",
			want: "",
		},
		{
			name: "no digits at all",
			text: "الرقم السري غير موجود",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCardNumber(tt.text); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
