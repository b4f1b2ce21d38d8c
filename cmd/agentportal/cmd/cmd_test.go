package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/agentportal/securestore"
)

func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"authentication failure"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok123",
			"id":           srv.URL + "/id/00D/005",
			"instance_url": srv.URL,
			"issued_at":    strconv.FormatInt(time.Now().UnixMilli(), 10),
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("GET /id/00D/005", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"005","first_name":"John","last_name":"Doe","email":"john@example.com"}`))
	})
	mux.HandleFunc("GET /services/data/v57.0/query", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalSize":1,"done":true,"records":[{"Id":"001A","Name":"Acme Insurance"}]}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func resetFlags() {
	cfgFile, dataDir, storageBackend, logLevel, logFormat = "", "", "", "", ""
	loginUsername = ""
	loginBiometric, enrollBiometric, skipBiometric = false, false, false
	jsonOutput = false
	listenAddr, noBanner = "", false
}

// run executes the CLI with args and stdin, returning stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := Execute(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	provider := newProvider(t)
	t.Setenv("AGENTPORTAL_TOKEN_URL", provider.URL+"/services/oauth2/token")
	t.Setenv("AGENTPORTAL_CLIENT_ID", "client-id")
	t.Setenv("AGENTPORTAL_DEVICE_PASSPHRASE", "device-pass")
	t.Setenv("AGENTPORTAL_DATA_DIR", t.TempDir())
	t.Setenv("AGENTPORTAL_STORAGE", "bbolt")
	t.Setenv("AGENTPORTAL_LOG_LEVEL", "error")
}

func TestSessionLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "secret\n", "login", "-u", "agent1", "--enable-biometrics")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as John Doe")
	assert.Contains(t, out, "Biometric login is enabled.")

	out, err = run(t, "", "status", "--json")
	require.NoError(t, err)
	var st statusView
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Authenticated)
	assert.True(t, st.BiometricEnabled)
	assert.Equal(t, "john@example.com", st.Email)
	require.NotNil(t, st.ExpiresAt)

	out, err = run(t, "", "agencies")
	require.NoError(t, err)
	assert.Contains(t, out, "001A")
	assert.Contains(t, out, "Acme Insurance")

	out, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
	assert.Contains(t, out, "Biometric login: enabled")

	_, err = run(t, "", "agencies")
	require.Error(t, err)

	_, err = run(t, "n\n", "login", "--biometric")
	require.EqualError(t, err, "Authentication Failed: Biometric authentication failed.")

	out, err = run(t, "y\n", "login", "--biometric")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as John Doe")

	out, err = run(t, "", "biometric", "disable")
	require.NoError(t, err)
	assert.Contains(t, out, "Biometric login disabled.")

	_, err = run(t, "y\n", "login", "--biometric")
	require.EqualError(t, err, "Biometric Error: Stored credentials not found. Please log in manually.")
}

func TestLoginRejected(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "wrong\n", "login", "-u", "agent1", "--no-biometrics")
	require.EqualError(t, err, "Login Failed: authentication failure")

	out, err := run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestLoginPromptsForBiometrics(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "agent1\nsecret\nn\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: ")
	assert.Contains(t, out, "Enable Biometric Login?")
	assert.NotContains(t, out, "Biometric login is enabled.")
}

func TestLoginWithoutClientID(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTPORTAL_CLIENT_ID", "")

	_, err := run(t, "secret\n", "login", "-u", "agent1")
	require.ErrorContains(t, err, "client_id")

	// Commands that do not talk to the provider still work.
	_, err = run(t, "", "logout")
	require.NoError(t, err)
}

func TestMemoryBackendNeedsNoPassphrase(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTPORTAL_DEVICE_PASSPHRASE", "")

	out, err := run(t, "", "--storage", "memory", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestChangePassphrase(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "secret\n", "login", "-u", "agent1", "--no-biometrics")
	require.NoError(t, err)

	_, err = run(t, "one\ntwo\n", "passphrase")
	require.EqualError(t, err, "passphrases do not match")

	out, err := run(t, "rotated\nrotated\n", "passphrase")
	require.NoError(t, err)
	assert.Contains(t, out, "Device passphrase changed.")

	_, err = run(t, "", "status")
	require.ErrorIs(t, err, securestore.ErrWrongPassphrase)

	t.Setenv("AGENTPORTAL_DEVICE_PASSPHRASE", "rotated")
	out, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as John Doe")
}

func TestServerHandler(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTPORTAL_STORAGE", "memory")
	resetFlags()

	rootCmd.SetContext(context.Background())
	a, err := openApp(rootCmd, appDeps{})
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(newServerHandler(newAPI(a)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/api/v1/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
}

func TestTerminalConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\r\n", true},
		{"\n", false},
		{"nope\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := newTerminal(strings.NewReader(tt.in), &out).Confirm(context.Background(), "Proceed?")
		require.NoError(t, err, "%q", tt.in)
		assert.Equal(t, tt.want, got, "%q", tt.in)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}

func TestSweepEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		sweepEvery(ctx, time.Millisecond, func() {
			select {
			case swept <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep loop did not stop")
	}
}

func TestConfigCommand(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTPORTAL_CLIENT_SECRET", "shh")

	out, err := run(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "redirect_url: com.myapp://oauthredirect")
	assert.Contains(t, out, "revoke_url: https://login.salesforce.com/services/oauth2/revoke")
	assert.Contains(t, out, "- refresh_token")
	assert.Contains(t, out, "client_id: client-id")
	assert.Contains(t, out, "client_secret: REDACTED")
	assert.NotContains(t, out, "shh")
	assert.NotContains(t, out, "device-pass")
}
