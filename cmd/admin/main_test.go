package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"wedsite/internal/auth"
	"wedsite/internal/config"
	"wedsite/internal/database"
	"wedsite/internal/profile"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(sqlite.Open(dsn), config.DatabaseConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

var tempPasswordLine = regexp.MustCompile(`临时密码: (\S+)`)

func TestCreateCoupleSeedsDraft(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer

	err := createCouple(db, &out, " Ana-E-Joao ", coupleFlags{
		bride: "Ana",
		groom: "João",
		date:  "2026-09-12",
		slug:  "ana-e-joao",
	})
	require.NoError(t, err)

	var user database.User
	require.NoError(t, db.Preload("Site").Where("username = ?", "ana-e-joao").First(&user).Error)
	assert.True(t, user.MustChangePassword)
	require.NotNil(t, user.Site)
	assert.Equal(t, "ana-e-joao", user.Site.Slug)
	assert.Equal(t, database.SiteDraft, user.Site.Status)

	var rec profile.Record
	require.NoError(t, json.Unmarshal(user.Site.Fields, &rec))
	assert.Equal(t, "Ana", rec.Get(profile.KeyBrideName))
	_, hasTheme := rec[profile.KeyTheme]
	assert.True(t, hasTheme, "draft is the full template record")

	m := tempPasswordLine.FindStringSubmatch(out.String())
	require.Len(t, m, 2)
	assert.True(t, auth.CheckPasswordHash(m[1], user.PasswordHash))

	err = createCouple(db, &out, "ana-e-joao", coupleFlags{})
	assert.ErrorContains(t, err, "already exists")
}

func TestCreateCoupleWithoutDetailsSkipsDraft(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, createCouple(db, &bytes.Buffer{}, "bia", coupleFlags{bride: "Bia"}))

	var count int64
	require.NoError(t, db.Model(&database.Site{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateCoupleRejectsInvalidSlug(t *testing.T) {
	db := newTestDB(t)
	err := createCouple(db, &bytes.Buffer{}, "caio", coupleFlags{
		bride: "Clara", groom: "Caio", date: "2026-09-12", slug: "Not A Slug",
	})
	assert.ErrorContains(t, err, "invalid site fields")

	var count int64
	require.NoError(t, db.Model(&database.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestResetPassword(t *testing.T) {
	db := newTestDB(t)
	assert.ErrorContains(t, resetPassword(db, &bytes.Buffer{}, "ghost"), "not found")

	require.NoError(t, db.Create(&database.User{Username: "duda", PasswordHash: "x"}).Error)
	var out bytes.Buffer
	require.NoError(t, resetPassword(db, &out, "DUDA"))

	var user database.User
	require.NoError(t, db.Where("username = ?", "duda").First(&user).Error)
	assert.True(t, user.MustChangePassword)
	m := tempPasswordLine.FindStringSubmatch(out.String())
	require.Len(t, m, 2)
	assert.True(t, auth.CheckPasswordHash(m[1], user.PasswordHash))
}

func TestDBFlagsOverrideOnlySetValues(t *testing.T) {
	d := config.DatabaseConfig{Host: "localhost", Port: 5432, Name: "wedsite"}
	dbFlags{host: "db.internal", port: 6543}.apply(&d)
	assert.Equal(t, "db.internal", d.Host)
	assert.Equal(t, 6543, d.Port)
	assert.Equal(t, "wedsite", d.Name)
}
