package app

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/rotisserie/eris"

	"battlearena/internal/config"
)

const (
	VivoxTokenActionLogin = "login"
	VivoxTokenActionJoin  = "join"
)

// VivoxService signs Vivox access tokens for competition voice channels.
type VivoxService struct {
	secret string
	issuer string
	domain string
	ttl    time.Duration
	now    func() time.Time
}

func NewVivoxService(cfg config.VoiceConfig) *VivoxService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &VivoxService{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		domain: cfg.Domain,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Enabled reports whether credentials are configured.
func (s *VivoxService) Enabled() bool {
	return s != nil && s.secret != "" && s.issuer != "" && s.domain != ""
}

// CompetitionChannel names the voice channel of a competition, or of one team inside it.
func CompetitionChannel(competitionID, team string) string {
	if team == "" {
		return "arena-" + competitionID
	}
	return "arena-" + competitionID + "-" + team
}

func (s *VivoxService) GenerateToken(user, action, channelName string) (string, error) {
	if s == nil {
		return "", eris.New("vivox service is nil")
	}
	if user == "" {
		return "", eris.New("user is required")
	}
	if !s.Enabled() {
		return "", eris.New("vivox config is incomplete")
	}

	userURI := s.userURI(user)
	targetURI, err := s.targetURI(action, channelName, userURI)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": user,
		"exp": now.Add(s.ttl).Unix(),
		"vxa": action,
		"vxi": strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatInt(rand.Int63(), 10),
		"f":   userURI,
		"t":   targetURI,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", eris.Wrap(err, "failed to sign vivox token")
	}
	return signed, nil
}

func (s *VivoxService) userURI(user string) string {
	return "sip:." + s.issuer + "." + user + ".@" + s.domain
}

func (s *VivoxService) channelURI(channelName string) string {
	return "sip:confctl-g-" + channelName + "@" + s.domain
}

func (s *VivoxService) targetURI(action, channelName, userURI string) (string, error) {
	switch action {
	case VivoxTokenActionLogin:
		return userURI, nil
	case VivoxTokenActionJoin:
		if channelName == "" {
			return "", eris.New("channel name is required for join tokens")
		}
		return s.channelURI(channelName), nil
	default:
		return "", eris.Errorf("unsupported vivox action: %s", action)
	}
}
