// seed 创建或重置本地账号，外部登录映射的账号也需用它预先建好
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"CMS_Blog/internal/config"
	"CMS_Blog/internal/pkg"
	"CMS_Blog/internal/repository/mysql"
	"CMS_Blog/internal/service"
)

func main() {
	var username, password string
	flag.StringVar(&username, "username", "admin", "account username")
	flag.StringVar(&password, "password", "", "account password (required)")
	flag.Parse()

	if password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := pkg.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := mysql.InitDB(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatalw("Failed to open database", "error", err)
	}
	if err := mysql.Migrate(db); err != nil {
		logger.Fatalw("Failed to migrate database", "error", err)
	}

	// 只用到账号存储，不需要会话 token
	users, err := service.NewUserService(mysql.NewUserRepository(db), nil, nil, logger)
	if err != nil {
		logger.Fatalw("Failed to create user service", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user, err := users.Provision(ctx, username, password)
	if err != nil {
		logger.Fatalw("Failed to provision user", "username", username, "error", err)
	}
	logger.Infow("User provisioned", "user_id", user.ID, "username", user.Username)
}
