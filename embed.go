package tinychat

import "embed"

// TemplateFS holds the HTML templates for the chat page.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS holds the static assets served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
