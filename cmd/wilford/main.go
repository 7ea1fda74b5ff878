// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the wilford authorization server.
package main

import (
	"os"

	"github.com/wilford-oidc/wilford/cmd/wilford/app"
	"github.com/wilford-oidc/wilford/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
