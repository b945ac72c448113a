package commands

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/models"
	postgresstore "github.com/xard1993/komun-api/internal/store/postgres"
)

type UserCmd struct {
	Add   UserAddCmd   `cmd:"" help:"Add a platform user"`
	Token UserTokenCmd `cmd:"" help:"Issue an access token for a user"`
}

type UserAddCmd struct {
	Email         string `help:"email address, notices are sent here" required:""`
	Name          string `help:"display name"`
	PlatformAdmin bool   `help:"allow the user to provision tenants over the API"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *UserAddCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	addr, err := mail.ParseAddress(c.Email)
	if err != nil {
		return fmt.Errorf("invalid email %q: %w", c.Email, err)
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	user := &models.User{
		ID:            uuid.Must(uuid.NewV7()),
		Email:         strings.ToLower(addr.Address),
		Name:          c.Name,
		PlatformAdmin: c.PlatformAdmin,
		CreatedAt:     time.Now().UTC(),
	}
	if err := postgresstore.NewTenantStore(pool).CreateUser(ctx, user); err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID.String()).Str("email", user.Email).Bool("platform_admin", user.PlatformAdmin).Msg("User added")
	fmt.Println(user.ID)
	return nil
}

type UserTokenCmd struct {
	User      string        `help:"user id" required:""`
	TTL       time.Duration `help:"token lifetime" default:"1h"`
	JWTSecret string        `help:"HS256 signing secret" required:"" env:"KOMUN_JWT_SECRET"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *UserTokenCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogging(globals)

	userID, err := uuid.Parse(c.User)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", c.User, err)
	}
	if c.TTL <= 0 {
		return errors.New("token lifetime must be positive")
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := postgresstore.NewTenantStore(pool).GetUser(ctx, userID)
	if err != nil {
		return err
	}

	token, err := auth.IssueToken([]byte(c.JWTSecret), user.ID, user.Email, c.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
