package checkout

import "strings"

// NormalizePhone canonicalises Bangladeshi mobile numbers to the local
// 11-digit "01xxxxxxxxx" form: country code stripped, leading zero ensured.
// Returns false when the input cannot be a BD mobile number.
func NormalizePhone(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()

	// Strip the 880 country code; "+8801711111111" and "8801711111111" both
	// reduce to "1711111111" here.
	if strings.HasPrefix(phone, "880") && len(phone) >= 13 {
		phone = phone[3:]
	}
	if strings.HasPrefix(phone, "1") && len(phone) == 10 {
		phone = "0" + phone
	}

	if len(phone) != 11 || !strings.HasPrefix(phone, "01") {
		return "", false
	}
	return phone, true
}
