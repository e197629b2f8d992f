package main

import (
	"context"
	"fmt"
	"os"

	"example.com/blogger/internal/account"
	"example.com/blogger/internal/admin"
	config "example.com/blogger/internal/init"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/posts"
	"example.com/blogger/internal/store"
	"github.com/fatih/color"
)

func main() {
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	st, err := store.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Store connection failed: %v", err))
		os.Exit(1)
	}

	app := &admin.App{
		Store:    st,
		Accounts: account.NewService(st, st, account.NewTokenProvider([]byte(cfg.SessionSecret)), nil, cfg.SessionTTL),
		Posts:    posts.NewService(st, nil, posts.WithMaxWindow(cfg.MaxWindow)),
	}

	err = admin.NewRootCmd(app).ExecuteContext(ctx)
	st.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
