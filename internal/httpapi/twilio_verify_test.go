package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestTwilioSignature_BaseString(t *testing.T) {
	// Parameters are sorted by name and appended to the URL as name then
	// value before HMAC-SHA1 signing, per the Twilio security docs.
	authToken := "12345"
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	form := map[string][]string{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}

	base := "https://mycompany.com/myapp.php?foo=1&bar=2" +
		"CallSidCA1234567890ABCDE" +
		"Caller+12349013030" +
		"Digits1234" +
		"From+12349013030" +
		"To+18005551212"
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(base))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := twilioSignature(authToken, fullURL, form); got != want {
		t.Errorf("twilioSignature() = %q, want %q", got, want)
	}
}

func TestTwilioSignature_EmptyForm(t *testing.T) {
	// A GET webhook signs only the URL.
	got := twilioSignature("secret", "https://example.com/media", nil)
	if got == "" {
		t.Error("signature should not be empty")
	}

	// Adding a parameter must change the signature.
	withParam := twilioSignature("secret", "https://example.com/media", map[string][]string{"A": {"b"}})
	if got == withParam {
		t.Error("signature should depend on form parameters")
	}
}

func newTestRouter(cfg RouterConfig) *Router {
	return &Router{
		cfg:    cfg,
		logger: log.New(io.Discard, "", 0),
		calls:  NewCallRegistry(),
	}
}

func TestVerifyTwilioSignature_SkippedWithoutToken(t *testing.T) {
	r := newTestRouter(RouterConfig{})

	req := httptest.NewRequest("POST", "/telephony/inbound", nil)
	_ = req.ParseForm()

	if !r.verifyTwilioSignature(req) {
		t.Error("verification should pass when no auth token is configured")
	}
}

func TestVerifyTwilioSignature_MissingHeader(t *testing.T) {
	r := newTestRouter(RouterConfig{
		TwilioAuthToken: "secret",
		PublicBaseURL:   "https://example.com",
	})

	req := httptest.NewRequest("POST", "/telephony/inbound", nil)
	_ = req.ParseForm()

	if r.verifyTwilioSignature(req) {
		t.Error("verification should fail without a signature header")
	}
}

func TestVerifyTwilioSignature_ValidAndTampered(t *testing.T) {
	const authToken = "test-auth-token"
	r := newTestRouter(RouterConfig{
		TwilioAuthToken: authToken,
		PublicBaseURL:   "https://example.com",
	})

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+15551234567")

	makeReq := func(body url.Values, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/telephony/inbound", strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Twilio-Signature", sig)
		_ = req.ParseForm()

		rec := httptest.NewRecorder()
		if r.verifyTwilioSignature(req) {
			rec.WriteHeader(200)
		} else {
			rec.WriteHeader(403)
		}
		return rec
	}

	sig := twilioSignature(authToken, "https://example.com/telephony/inbound", form)

	if rec := makeReq(form, sig); rec.Code != 200 {
		t.Error("valid signature should verify")
	}

	// Tampered body invalidates the signature.
	tampered := url.Values{}
	tampered.Set("CallSid", "CA999")
	tampered.Set("From", "+15551234567")
	if rec := makeReq(tampered, sig); rec.Code != 403 {
		t.Error("tampered body should fail verification")
	}

	// Wrong signature fails outright.
	if rec := makeReq(form, "bm90IGEgcmVhbCBzaWduYXR1cmU="); rec.Code != 403 {
		t.Error("bogus signature should fail verification")
	}
}
