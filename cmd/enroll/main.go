// Command enroll creates or updates an admin allowed through the triple-factor login.
//
//	BASTION_ENROLL_PASSWORD=... enroll -username root -role super_admin \
//	    -hardware-key key.pem -totp-qr root-totp.png -allowed-ips 10.0.0.0/8
//
// The password is read from BASTION_ENROLL_PASSWORD, or from the first line of stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
)

const passwordEnv = "BASTION_ENROLL_PASSWORD"

type options struct {
	username    string
	role        string
	hardwareKey string
	totpQR      string
	rotateTOTP  bool
	allowedIPs  string
	keepPass    bool
}

// admins is the slice of AdminRepository the enrollment needs
type admins interface {
	GetByUsername(ctx context.Context, username string) (*models.Admin, error)
	Upsert(ctx context.Context, admin *models.Admin) error
}

// totpEnroller generates a fresh TOTP secret
type totpEnroller interface {
	GenerateSecretWithQR(accountName string) (*auth.TOTPEnrollment, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var opts options
	flag.StringVar(&opts.username, "username", "", "admin username (required)")
	flag.StringVar(&opts.role, "role", models.RoleSuperAdmin, "admin role: creator or super_admin")
	flag.StringVar(&opts.hardwareKey, "hardware-key", "", "PEM file with the ECDSA P-256 or Ed25519 public key")
	flag.StringVar(&opts.totpQR, "totp-qr", "", "write the TOTP provisioning QR code PNG to this path")
	flag.BoolVar(&opts.rotateTOTP, "rotate-totp", false, "replace an existing TOTP secret")
	flag.StringVar(&opts.allowedIPs, "allowed-ips", "", "comma separated addresses or CIDR ranges; empty allows any")
	flag.BoolVar(&opts.keepPass, "keep-password", false, "keep the existing password of an enrolled admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool, logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkew)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	password := os.Getenv(passwordEnv)
	if password == "" && !opts.keepPass {
		if password, err = readLine(os.Stdin); err != nil {
			logger.Error("failed to read password", slog.Any("error", err))
			os.Exit(1)
		}
	}

	e := &enroller{
		admins:   repositories.NewAdminRepository(db),
		totp:     totpManager,
		readFile: os.ReadFile,
		writeFile: func(path string, data []byte) error {
			return os.WriteFile(path, data, 0o600)
		},
		out: os.Stdout,
	}
	if err := e.run(ctx, opts, password); err != nil {
		logger.Error("enrollment failed", slog.Any("error", err))
		os.Exit(1)
	}
}

type enroller struct {
	admins    admins
	totp      totpEnroller
	readFile  func(path string) ([]byte, error)
	writeFile func(path string, data []byte) error
	out       io.Writer
}

func (e *enroller) run(ctx context.Context, opts options, password string) error {
	username := strings.ToLower(strings.TrimSpace(opts.username))
	if username == "" {
		return errors.New("-username is required")
	}
	if opts.role != models.RoleCreator && opts.role != models.RoleSuperAdmin {
		return fmt.Errorf("-role must be %q or %q", models.RoleCreator, models.RoleSuperAdmin)
	}

	admin, err := e.admins.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrNotFound):
		admin = &models.Admin{Username: username}
	case err != nil:
		return fmt.Errorf("failed to look up admin: %w", err)
	}
	admin.Role = opts.role

	if !opts.keepPass || admin.PasswordHash == "" {
		if err := pkgauth.ValidatePassword(password); err != nil {
			return err
		}
		hash, err := pkgauth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		admin.PasswordHash = hash
	}

	if opts.hardwareKey != "" {
		pemData, err := e.readFile(opts.hardwareKey)
		if err != nil {
			return fmt.Errorf("failed to read hardware key: %w", err)
		}
		if _, err := auth.ParsePublicKey(string(pemData)); err != nil {
			return fmt.Errorf("invalid hardware key: %w", err)
		}
		admin.HardwareKeyPublicKey = string(pemData)
	}
	if !admin.HardwareKeyEnabled() {
		return errors.New("-hardware-key is required for a new admin")
	}

	var enrollment *auth.TOTPEnrollment
	if opts.rotateTOTP || !admin.TOTPEnabled() {
		if opts.totpQR == "" {
			return errors.New("-totp-qr is required when a TOTP secret is generated")
		}
		enrollment, err = e.totp.GenerateSecretWithQR(username)
		if err != nil {
			return err
		}
		admin.TOTPSecretEncrypted = enrollment.EncryptedSecret
		admin.TOTPSecretNonce = enrollment.Nonce
	}

	admin.AllowedIPs, err = parseAllowedIPs(opts.allowedIPs)
	if err != nil {
		return err
	}

	if err := e.admins.Upsert(ctx, admin); err != nil {
		return fmt.Errorf("failed to save admin: %w", err)
	}

	fmt.Fprintf(e.out, "admin %s enrolled (id %s, role %s)\n", admin.Username, admin.ID, admin.Role)
	if enrollment != nil {
		if err := e.writeFile(opts.totpQR, enrollment.QRCodePNG); err != nil {
			return fmt.Errorf("admin saved but QR code could not be written: %w", err)
		}
		fmt.Fprintf(e.out, "TOTP QR code written to %s\nmanual entry secret: %s\n", opts.totpQR, enrollment.Secret)
	}
	return nil
}

// parseAllowedIPs accepts single addresses and CIDR ranges
func parseAllowedIPs(raw string) ([]string, error) {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil && net.ParseIP(entry) == nil {
			return nil, fmt.Errorf("invalid allowed IP entry %q", entry)
		}
		out = append(out, entry)
	}
	return out, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
