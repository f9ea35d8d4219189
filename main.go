package main

import (
	"errors"
	"os"

	"github.com/alecthomas/kong"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug  bool
	Domain string
	Logger *slog.Logger

	Dialector gorm.Dialector
	gorm.Config
}

// openDB opens the database named by --dsn.
func (c *Context) openDB() (*gorm.DB, error) {
	db, err := gorm.Open(c.Dialector, &c.Config)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		return nil, err
	}
	return db, nil
}

func (c *Context) domain() (string, error) {
	if c.Domain == "" {
		return "", errors.New("--domain is required")
	}
	return c.Domain, nil
}

var cli struct {
	Config   kong.ConfigFlag `help:"Load configuration from a YAML file." placeholder:"PATH"`
	Debug    bool            `help:"Enable debug mode." env:"FEDI_DEBUG"`
	LogLevel string          `help:"Log level (debug, info, warn, error)." enum:"debug,info,warn,error" default:"info" env:"FEDI_LOG_LEVEL"`
	DSN      string          `help:"Data source name." default:"fedi:fedi@tcp(localhost:3306)/fedi" env:"FEDI_DSN"`
	Domain   string          `help:"Domain name of this server." env:"FEDI_DOMAIN"`

	Serve        ServeCmd        `cmd:"" help:"Serve the federation endpoints and deliver queued activities."`
	Deliver      DeliverCmd      `cmd:"" help:"Deliver queued activities."`
	AutoMigrate  AutoMigrateCmd  `cmd:"" name:"migrate" help:"Create or update the database schema."`
	CreateActor  CreateActorCmd  `cmd:"" help:"Create a local actor and print its bearer token."`
	FetchActor   FetchActorCmd   `cmd:"" help:"Discover a remote actor and cache its inbox and key."`
	Follow       FollowCmd       `cmd:"" help:"Follow a remote actor."`
	Unfollow     UnfollowCmd     `cmd:"" help:"Undo a follow of a remote actor."`
	Publish      PublishCmd      `cmd:"" help:"Publish a submission to its owner's followers."`
	Like         LikeCmd         `cmd:"" help:"Like a submission."`
	Reply        ReplyCmd        `cmd:"" help:"Reply to a submission."`
	HouseKeeping HouseKeepingCmd `cmd:"" help:"Purge exhausted delivery requests and old notifications."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Description("ActivityPub federation for questline."),
		kong.Configuration(yamlConfig, "./fedi.yaml", "~/.config/fedi.yaml"),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		ctx.FatalIfErrorf(err)
	}
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cli.Debug {
		level = slog.LevelDebug
		gormLogger = logger.Default.LogMode(logger.Info)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	err := ctx.Run(&Context{
		Debug:     cli.Debug,
		Domain:    cli.Domain,
		Logger:    log,
		Dialector: newDialector(cli.DSN),
		Config: gorm.Config{
			Logger:         gormLogger,
			TranslateError: true,
		},
	})
	ctx.FatalIfErrorf(err)
}
