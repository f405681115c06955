package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "televkvpn.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
transport_type: telegram
telegram:
  bot_token: "123:abc"
  chat_id: "@channel"
server_ip: 10.8.0.1
client_ip: 10.8.0.2
encryption_key: "01234567890123456789012345678901"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MTU != 1280 {
		t.Errorf("MTU = %d, want default 1280", cfg.MTU)
	}
	if cfg.TAPInterfaceName != "televk0" {
		t.Errorf("TAPInterfaceName = %q, want default", cfg.TAPInterfaceName)
	}
	if len(cfg.TelegramSubnets) == 0 {
		t.Error("TelegramSubnets should default to the Telegram/VK exclusion list")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadTransportType(t *testing.T) {
	path := writeTempConfig(t, `
transport_type: carrier-pigeon
server_ip: 10.8.0.1
client_ip: 10.8.0.2
encryption_key: "01234567890123456789012345678901"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded, want error for unsupported transport_type")
	}
}

func TestLoadRejectsShortKey(t *testing.T) {
	path := writeTempConfig(t, `
transport_type: telegram
telegram:
  bot_token: "123:abc"
  chat_id: "@channel"
server_ip: 10.8.0.1
client_ip: 10.8.0.2
encryption_key: "too-short"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded, want error for encryption_key not 32 bytes")
	}
}

func TestLoadRequiresChatIDForTelegram(t *testing.T) {
	path := writeTempConfig(t, `
transport_type: telegram
telegram:
  bot_token: "123:abc"
server_ip: 10.8.0.1
client_ip: 10.8.0.2
encryption_key: "01234567890123456789012345678901"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded, want error for missing telegram.chat_id")
	}
}

func TestLoadRequiresVKFields(t *testing.T) {
	path := writeTempConfig(t, `
transport_type: vk
server_ip: 10.8.0.1
client_ip: 10.8.0.2
encryption_key: "01234567890123456789012345678901"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded, want error for missing vk.token/peer_id")
	}
}

func TestIPForRole(t *testing.T) {
	cfg := &Config{ServerIP: "10.8.0.1", ClientIP: "10.8.0.2"}
	if got := cfg.IPForRole("server"); got != "10.8.0.1" {
		t.Errorf("IPForRole(server) = %q, want 10.8.0.1", got)
	}
	if got := cfg.IPForRole("client"); got != "10.8.0.2" {
		t.Errorf("IPForRole(client) = %q, want 10.8.0.2", got)
	}
}

func TestWriteDefaultRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "@channel"
	cfg.ServerIP = "10.8.0.1"
	cfg.ClientIP = "10.8.0.2"
	cfg.EncryptionKey = "01234567890123456789012345678901"

	if err := Write(cfg, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written config failed: %v", err)
	}
	if loaded.ServerIP != cfg.ServerIP {
		t.Errorf("round-tripped ServerIP = %q, want %q", loaded.ServerIP, cfg.ServerIP)
	}
}
