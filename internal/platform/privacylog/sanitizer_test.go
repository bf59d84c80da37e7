package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const testAddress = "5Hax9tpSjfiX1nYrqhFf8F3sLiaa2ZfPv2VeDQzPBLzKNjRq"

func TestSanitizeAttrFingerprintsAccounts(t *testing.T) {
	fp := SanitizeAttr(slog.String("Address", testAddress))
	if fp.Key != "Address_fp" || !strings.HasPrefix(fp.Value.String(), "fp_") {
		t.Fatalf("unexpected fingerprint attr: %v", fp)
	}
	if again := SanitizeAttr(slog.String("address", testAddress)); again.Value.String() != fp.Value.String() {
		t.Fatal("fingerprint is not stable within a process")
	}
	if got := SanitizeAttr(slog.String("suri", "//Alice")); got.Value.String() != redactedValue {
		t.Fatalf("expected redacted suri, got %v", got)
	}
	if got := SanitizeAttr(slog.String("scheme", "sr25519")); got.Value.String() != "sr25519" {
		t.Fatalf("expected untouched value, got %v", got)
	}
}

func TestLoggerRedactsSecretsAndAccounts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("unlock",
		"address", testAddress,
		"passphrase", "000000",
		"mini_secret", "deadbeef",
		slog.Group("keyfile", slog.String("public_key", "f43e"), slog.String("name", "GEAR")),
		"result", "ok",
	)
	out := buf.String()
	for _, leaked := range []string{testAddress, "000000", "deadbeef", "f43e"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["address_fp"]; !ok {
		t.Fatal("address_fp should be present")
	}
	if got, _ := payload["passphrase"].(string); got != redactedValue {
		t.Fatalf("expected redacted passphrase, got %q", got)
	}
	group, _ := payload["keyfile"].(map[string]any)
	if _, ok := group["public_key_fp"]; !ok || group["name"] != "GEAR" {
		t.Fatalf("group not sanitized: %v", group)
	}
}

func TestFingerprintIsStable(t *testing.T) {
	if FingerprintID(testAddress) != FingerprintID(" "+testAddress) {
		t.Fatal("fingerprint not stable across whitespace")
	}
	if FingerprintID("") != "" {
		t.Fatal("empty value should stay empty")
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	h = h.WithAttrs([]slog.Attr{slog.String("peer_id", "12D3KooW")})
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("account_id", "ab"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "account_id_fp") || !strings.Contains(buf.String(), "peer_id_fp") {
		t.Fatalf("expected sanitized keys, got %s", buf.String())
	}
	if WrapHandler(nil) != nil {
		t.Fatal("nil handler should stay nil")
	}
}
