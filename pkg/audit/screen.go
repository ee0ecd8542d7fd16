package audit

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// Finding is one piece of user input that libinjection flagged.
type Finding struct {
	Field       string
	Kind        string
	Fingerprint string
}

// ScreenSQL flags SQL injection patterns. Free-text search terms are bound as parameters,
// so a hit is only logged, never used to block.
func ScreenSQL(field, value string) *Finding {
	if value == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
		return &Finding{Field: field, Kind: "sqli", Fingerprint: string(fingerprint)}
	}
	return nil
}

// ScreenXSS flags markup that would execute if a platform rendered reply text unescaped.
func ScreenXSS(field, value string) *Finding {
	if value == "" {
		return nil
	}
	if libinjection.IsXSS(value) {
		return &Finding{Field: field, Kind: "xss"}
	}
	return nil
}

// Details converts the finding into audit details, keeping the offending value for triage.
func (f *Finding) Details(value string) InjectionDetails {
	return InjectionDetails{
		Field:       f.Field,
		Value:       value,
		Kind:        f.Kind,
		Fingerprint: f.Fingerprint,
	}
}
