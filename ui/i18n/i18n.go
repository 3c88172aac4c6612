// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package i18n translates the UI's English text.  Messages are keyed by
// their English format string, so a missing translation prints English.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Supported lists the UI languages, the first being the fallback.
var Supported = []language.Tag{
	language.English,
	language.TraditionalChinese,
}

var (
	matcher = language.NewMatcher(Supported)
	cat     = newCatalog()
)

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, m := range zhHant {
		_ = b.SetString(language.TraditionalChinese, m.en, m.zh)
	}
	return b
}

// Match returns the supported language closest to the given locales, which
// may be POSIX style (zh_TW.UTF-8) or BCP 47 (zh-Hant).
func Match(locales ...string) language.Tag {
	var tags []language.Tag
	for _, l := range locales {
		l, _, _ = strings.Cut(l, ".")
		l, _, _ = strings.Cut(l, "@")
		if l == "" || l == "C" || l == "POSIX" {
			continue
		}
		if t, err := language.Parse(strings.ReplaceAll(l, "_", "-")); err == nil {
			tags = append(tags, t)
		}
	}
	_, i, _ := matcher.Match(tags...)
	return Supported[i]
}

// Printer formats UI text in one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// NewPrinter returns a Printer for tag, which should be one of Supported.
func NewPrinter(tag language.Tag) *Printer {
	return &Printer{
		tag: tag,
		p:   message.NewPrinter(tag, message.Catalog(cat)),
	}
}

// Language returns the Printer's language.
func (p *Printer) Language() language.Tag { return p.tag }

// T translates the English format string key and formats it with a.
func (p *Printer) T(key string, a ...interface{}) string {
	if p == nil {
		return message.NewPrinter(language.English).Sprintf(key, a...)
	}
	return p.p.Sprintf(key, a...)
}
