package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dom/dataroom/internal/config"
	"github.com/dom/dataroom/internal/drive"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/oauthstate"
	"github.com/dom/dataroom/internal/repository"
	"github.com/dom/dataroom/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Services struct {
	OAuth  *OAuthService
	Tokens *TokenService
	Import *ImportService
	Files  *FileService
}

// Infrastructure is everything the services need besides repositories.
type Infrastructure struct {
	Store      *storage.Store
	Drive      DriveClient
	States     *oauthstate.Issuer
	Verifier   IDTokenVerifier
	Events     events.Publisher
	HTTPClient *http.Client
}

func NewServices(repos *repository.Repositories, infra Infrastructure, cfg *config.Config, logger logrus.FieldLogger) *Services {
	oauthCfg := NewOAuthConfig(cfg)
	tokens := NewTokenService(repos.Session, oauthCfg, infra.HTTPClient, cfg.TokenRefreshBuffer, cfg.SessionTTL, logger)

	return &Services{
		OAuth:  NewOAuthService(repos.Session, oauthCfg, infra.States, infra.Verifier, tokens, infra.HTTPClient, logger),
		Tokens: tokens,
		Import: NewImportService(repos.File, infra.Drive, infra.Store, infra.Events, cfg.MaxFileSize, logger),
		Files:  NewFileService(repos.File, infra.Store, infra.Events, logger),
	}
}

// NewInfrastructure builds the provider clients, file store and state issuer
// from configuration.
func NewInfrastructure(ctx context.Context, cfg *config.Config, publisher events.Publisher, logger logrus.FieldLogger) (Infrastructure, error) {
	store, err := storage.New(cfg.UploadDir, logger.WithField("component", "storage"))
	if err != nil {
		return Infrastructure{}, err
	}

	states, err := oauthstate.NewIssuer([]byte(cfg.OAuthStateSecret), cfg.OAuthStateTTL, oauthstate.NewMemoryStore())
	if err != nil {
		return Infrastructure{}, fmt.Errorf("creating oauth state issuer: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	driveClient := drive.NewClient(drive.Options{
		BaseURL:         cfg.GoogleDriveURL,
		MetadataTimeout: cfg.ProviderTimeout,
		TransferTimeout: cfg.TransferTimeout,
	}, logger.WithField("component", "drive"))

	if publisher == nil {
		publisher = events.Discard{}
	}

	return Infrastructure{
		Store:      store,
		Drive:      driveClient,
		States:     states,
		Verifier:   NewIDTokenVerifier(ctx, cfg, httpClient),
		Events:     publisher,
		HTTPClient: httpClient,
	}, nil
}

func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.GoogleAuthURL,
			TokenURL: cfg.GoogleTokenURL,
			// Google accepts client credentials in the form body.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// NewIDTokenVerifier checks ID tokens against the issuer's published keys.
// Keys are fetched lazily on first use.
func NewIDTokenVerifier(ctx context.Context, cfg *config.Config, httpClient *http.Client) *oidc.IDTokenVerifier {
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(ctx, httpClient), cfg.GoogleJWKSURL)
	return oidc.NewVerifier(cfg.GoogleIssuer, keySet, &oidc.Config{ClientID: cfg.GoogleClientID})
}
