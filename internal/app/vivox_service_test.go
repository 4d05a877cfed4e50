package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battlearena/internal/config"
)

func voiceConfig() config.VoiceConfig {
	return config.VoiceConfig{Secret: "test-secret", Issuer: "issuer", Domain: "example.com", TokenTTL: time.Minute}
}

func TestVivoxServiceGenerateLoginToken(t *testing.T) {
	svc := NewVivoxService(voiceConfig())
	tokenString, err := svc.GenerateToken("user123", VivoxTokenActionLogin, "")
	require.NoError(t, err)

	claims := parseVivoxClaims(t, tokenString, "test-secret")
	userURI := "sip:.issuer.user123.@example.com"

	assert.Equal(t, VivoxTokenActionLogin, claims["vxa"])
	assert.Equal(t, userURI, claims["f"])
	assert.Equal(t, userURI, claims["t"])
	assert.Equal(t, "user123", claims["sub"])
	assert.Equal(t, "issuer", claims["iss"])
}

func TestVivoxServiceGenerateTeamJoinToken(t *testing.T) {
	svc := NewVivoxService(voiceConfig())
	fixed := time.Now().Truncate(time.Second)
	svc.now = func() time.Time { return fixed }

	channel := CompetitionChannel("c9", "red")
	require.Equal(t, "arena-c9-red", channel)

	tokenString, err := svc.GenerateToken("user123", VivoxTokenActionJoin, channel)
	require.NoError(t, err)

	claims := parseVivoxClaims(t, tokenString, "test-secret")
	assert.Equal(t, VivoxTokenActionJoin, claims["vxa"])
	assert.Equal(t, "sip:confctl-g-arena-c9-red@example.com", claims["t"])
	assert.EqualValues(t, fixed.Add(time.Minute).Unix(), claims["exp"])
}

func TestCompetitionChannelWithoutTeam(t *testing.T) {
	assert.Equal(t, "arena-c9", CompetitionChannel("c9", ""))
}

func TestVivoxServiceRejectsBadInput(t *testing.T) {
	svc := NewVivoxService(voiceConfig())

	_, err := svc.GenerateToken("user", "unknown", "")
	assert.Error(t, err)

	_, err = svc.GenerateToken("user", VivoxTokenActionJoin, "")
	assert.Error(t, err)

	_, err = svc.GenerateToken("", VivoxTokenActionLogin, "")
	assert.Error(t, err)
}

func TestVivoxServiceRequiresConfig(t *testing.T) {
	cfg := voiceConfig()
	cfg.Secret = ""
	svc := NewVivoxService(cfg)
	assert.False(t, svc.Enabled())
	_, err := svc.GenerateToken("user", VivoxTokenActionLogin, "")
	assert.Error(t, err)
}

func parseVivoxClaims(t *testing.T, tokenString, secret string) jwt.MapClaims {
	t.Helper()

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok, "claims are not map claims")
	return claims
}
