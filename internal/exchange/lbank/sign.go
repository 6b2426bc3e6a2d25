package lbank

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	// signature method identifier the exchange expects verbatim
	signatureMethod = "HmacSHA256"
	echoStrLength   = 32
	echoStrCharset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// signParams produces the request signature per the exchange's documented
// scheme: drop any existing sign key, sort the rest ascending by key, join
// as key=value pairs with &, MD5 the joined string (uppercase hex), then
// HMAC-SHA256 that digest with the secret. Deterministic for a given
// parameter set and secret regardless of input order.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	paramStr := strings.Join(pairs, "&")

	md5Sum := md5.Sum([]byte(paramStr))
	digest := strings.ToUpper(hex.EncodeToString(md5Sum[:]))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(digest))
	return hex.EncodeToString(mac.Sum(nil))
}

// newEchoStr returns a fresh random alphanumeric nonce. The exchange uses it
// for replay resistance, so it must differ per request.
func newEchoStr() string {
	buf := make([]byte, echoStrLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble
		panic(fmt.Sprintf("lbank: rand.Read: %v", err))
	}
	for i, b := range buf {
		buf[i] = echoStrCharset[int(b)%len(echoStrCharset)]
	}
	return string(buf)
}

// signedParams assembles the authentication parameters every signed request
// carries and appends the signature over the full set.
func signedParams(apiKey, apiSecret string, timestampMs int64, extra map[string]string) map[string]string {
	params := map[string]string{
		"api_key":          apiKey,
		"signature_method": signatureMethod,
		"timestamp":        fmt.Sprintf("%d", timestampMs),
		"echostr":          newEchoStr(),
	}
	for k, v := range extra {
		params[k] = v
	}
	params["sign"] = signParams(params, apiSecret)
	return params
}
