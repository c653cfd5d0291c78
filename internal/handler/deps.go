package handler

import (
	"textrelay/internal/app/chat"
	"textrelay/internal/configs"
)

// AppDeps bundles what the HTTP handlers need.
type AppDeps struct {
	Server *chat.Server
	Config *configs.AppConfig
}
