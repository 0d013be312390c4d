package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

const folderMimeType = "application/vnd.google-apps.folder"

// GDriveStorage uploads into a Drive folder. The folder is looked up by
// name, and created when missing, unless folder_id is configured.
type GDriveStorage struct {
	cfg config.TargetConfig
}

func NewGDrive(cfg config.TargetConfig) *GDriveStorage {
	return &GDriveStorage{cfg: cfg}
}

func (g *GDriveStorage) Name() string { return g.cfg.Name }
func (g *GDriveStorage) Type() string { return "gdrive" }

// LoadToken reads an OAuth token written by the authorize-gdrive command.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

func (g *GDriveStorage) service(ctx context.Context) (*drive.Service, error) {
	var opt option.ClientOption
	if g.cfg.CredentialsFile != "" {
		opt = option.WithCredentialsFile(g.cfg.CredentialsFile)
	} else {
		secret, err := os.ReadFile(g.cfg.ClientSecretFile)
		if err != nil {
			return nil, domain.NewTargetError(g.cfg.Name, domain.ErrAuth, fmt.Errorf("unable to read client secret: %w", err))
		}
		oauthCfg, err := google.ConfigFromJSON(secret, drive.DriveFileScope)
		if err != nil {
			return nil, domain.NewTargetError(g.cfg.Name, domain.ErrAuth, fmt.Errorf("unable to parse client secret: %w", err))
		}
		token, err := LoadToken(g.cfg.TokenFile)
		if err != nil {
			return nil, domain.NewTargetError(g.cfg.Name, domain.ErrAuth, err)
		}
		opt = option.WithHTTPClient(oauthCfg.Client(ctx, token))
	}

	svc, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, domain.NewTargetError(g.cfg.Name, domain.ErrAuth, fmt.Errorf("failed to create drive service: %w", err))
	}
	return svc, nil
}

func (g *GDriveStorage) classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return domain.ErrAuth
		}
		return domain.ErrTransfer
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return domain.ErrAuth
	}
	return domain.ErrConnect
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (g *GDriveStorage) folderID(ctx context.Context, svc *drive.Service) (string, error) {
	if g.cfg.FolderID != "" {
		return g.cfg.FolderID, nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(g.cfg.FolderName), folderMimeType)
	list, err := svc.Files.List().Q(query).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", domain.NewTargetError(g.cfg.Name, g.classify(err), fmt.Errorf("failed to find folder: %w", err))
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := svc.Files.Create(&drive.File{Name: g.cfg.FolderName, MimeType: folderMimeType}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", domain.NewTargetError(g.cfg.Name, domain.ErrMkdir, fmt.Errorf("failed to create folder %s: %w", g.cfg.FolderName, err))
	}
	return folder.Id, nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.NewTargetError(g.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	parent, err := g.folderID(ctx, svc)
	if err != nil {
		return err
	}

	name := filepath.Base(localPath)
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", escapeQuery(name), escapeQuery(parent))
	existing, err := svc.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return domain.NewTargetError(g.cfg.Name, g.classify(err), fmt.Errorf("failed to look up %s: %w", name, err))
	}

	if len(existing.Files) > 0 {
		_, err = svc.Files.Update(existing.Files[0].Id, &drive.File{}).Media(file).Context(ctx).Do()
	} else {
		_, err = svc.Files.Create(&drive.File{Name: name, Parents: []string{parent}}).Media(file).Context(ctx).Do()
	}
	if err != nil {
		return domain.NewTargetError(g.cfg.Name, g.classify(err), fmt.Errorf("failed to upload to gdrive: %w", err))
	}

	return nil
}

func (g *GDriveStorage) TestConnection(ctx context.Context) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}
	if _, err := svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return domain.NewTargetError(g.cfg.Name, g.classify(err), fmt.Errorf("failed to reach drive: %w", err))
	}
	return nil
}
