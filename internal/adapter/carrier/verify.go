package carrier

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
)

// VerifyHMACSHA256 checks a hex "sha256=<hex>"-or-bare-hex signature over
// body against secret, matching the scheme internal/usecase/handover's
// webhook sender signs with on the outbound side.
func VerifyHMACSHA256(secret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(expected, mac.Sum(nil))
}

// VerifyTwilioSignature validates an inbound Twilio webhook's
// X-Twilio-Signature header: HMAC-SHA1 over the webhook URL plus the
// form body's sorted key+value pairs, base64-encoded. Grounded on
// internal/adapter/tool's Twilio voice backend (computeTwilioSignature).
func VerifyTwilioSignature(authToken, webhookURL string, body []byte, signature string) bool {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return false
	}
	data := webhookURL
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			data += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := mac.Sum(nil)

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sigBytes, expected)
}
