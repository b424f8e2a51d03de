package mfa

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test vectors from RFC 6238 appendix B, SHA-1 rows, truncated to six
// digits with the secret "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestVerifyCodeRFCVectors(t *testing.T) {
	totp := NewTOTP("test")

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, v := range vectors {
		valid, counter, err := totp.VerifyCode(rfcSecret, v.code, time.Unix(v.unix, 0))
		require.NoError(t, err)
		require.True(t, valid, "code %s at t=%d", v.code, v.unix)
		require.Equal(t, v.unix/totpPeriod, counter)
	}
}

func TestVerifyCodeAcceptsAdjacentWindows(t *testing.T) {
	totp := NewTOTP("test")
	now := time.Unix(1111111111, 0)
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(rfcSecret)
	require.NoError(t, err)

	base := now.Unix() / totpPeriod
	previous := hotpCode(raw, base-1)
	next := hotpCode(raw, base+1)
	stale := hotpCode(raw, base-2)

	valid, _, err := totp.VerifyCode(rfcSecret, previous, now)
	require.NoError(t, err)
	require.True(t, valid)

	valid, _, err = totp.VerifyCode(rfcSecret, next, now)
	require.NoError(t, err)
	require.True(t, valid)

	valid, _, err = totp.VerifyCode(rfcSecret, stale, now)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyCodeRejectsBadShapes(t *testing.T) {
	totp := NewTOTP("test")
	now := time.Unix(1111111111, 0)

	for _, code := range []string{"", "12345", "1234567", "12a456", "abcdef"} {
		valid, _, err := totp.VerifyCode(rfcSecret, code, now)
		require.NoError(t, err)
		require.False(t, valid, "code %q", code)
	}

	_, _, err := totp.VerifyCode("not base32!!", "123456", now)
	require.Error(t, err)
}

func TestVerifyCodeTrimsWhitespace(t *testing.T) {
	totp := NewTOTP("test")

	valid, _, err := totp.VerifyCode(rfcSecret, " 287082 ", time.Unix(59, 0))
	require.NoError(t, err)
	require.True(t, valid)
}

func TestGenerateSecret(t *testing.T) {
	totp := NewTOTP("test")

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	require.Len(t, raw, totpSecretBytes)

	again, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, secret, again)
}

func TestProvisioningURI(t *testing.T) {
	totp := NewTOTP("Acme Identity")

	uri := totp.ProvisioningURI(rfcSecret, "user@example.com")
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/Acme%20Identity:user@example.com?"))
	require.Contains(t, uri, "secret="+rfcSecret)
	require.Contains(t, uri, "issuer=Acme+Identity")
	require.Contains(t, uri, "period=30")
	require.Contains(t, uri, "digits=6")
	require.Contains(t, uri, "algorithm=SHA1")
}
