// Command admin 为新人开通账号、重置密码。站点没有自助注册。
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wedsite/internal/auth"
	"wedsite/internal/config"
	"wedsite/internal/database"
	"wedsite/internal/form"
	"wedsite/internal/profile"
	"wedsite/internal/site"
)

const tempPasswordBytes = 18

type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

func (f dbFlags) apply(d *config.DatabaseConfig) {
	if f.host != "" {
		d.Host = f.host
	}
	if f.port > 0 {
		d.Port = f.port
	}
	if f.name != "" {
		d.Name = f.name
	}
	if f.user != "" {
		d.User = f.user
	}
	if f.password != "" {
		d.Password = f.password
	}
	if f.sslMode != "" {
		d.SSLMode = f.sslMode
	}
}

type coupleFlags struct {
	bride string
	groom string
	date  string
	slug  string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var db dbFlags
	root := &cobra.Command{
		Use:          "admin",
		Short:        "开通与维护新人账号",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&db.host, "db-host", "", "数据库 Host（默认读 DATABASE_HOST）")
	pf.IntVar(&db.port, "db-port", 0, "数据库 Port（默认读 DATABASE_PORT）")
	pf.StringVar(&db.name, "db-name", "", "数据库名（默认读 POSTGRES_DB）")
	pf.StringVar(&db.user, "db-user", "", "数据库用户（默认读 POSTGRES_USER）")
	pf.StringVar(&db.password, "db-password", "", "数据库密码（默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&db.sslMode, "db-sslmode", "", "数据库 SSLMODE（默认读 DATABASE_SSLMODE）")

	var couple coupleFlags
	create := &cobra.Command{
		Use:   "create USERNAME",
		Short: "创建新人账号，可同时初始化站点草稿",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDatabase(db)
			if err != nil {
				return err
			}
			return createCouple(conn, out, args[0], couple)
		},
	}
	create.Flags().StringVar(&couple.bride, "bride", "", "新娘姓名")
	create.Flags().StringVar(&couple.groom, "groom", "", "新郎姓名")
	create.Flags().StringVar(&couple.date, "date", "", "婚礼日期 YYYY-MM-DD")
	create.Flags().StringVar(&couple.slug, "slug", "", "站点地址")

	reset := &cobra.Command{
		Use:   "reset-password USERNAME",
		Short: "为已有账号生成新的临时密码",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDatabase(db)
			if err != nil {
				return err
			}
			return resetPassword(conn, out, args[0])
		},
	}

	root.AddCommand(create, reset)
	return root
}

func openDatabase(flags dbFlags) (*gorm.DB, error) {
	cfg, err := config.LoadDatabase(flags.apply)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// createCouple 创建账号（首次登录强制改密）。姓名、日期与地址齐全时一并写入站点草稿。
func createCouple(db *gorm.DB, out io.Writer, username string, couple coupleFlags) error {
	username = normalizeUsername(username)
	if username == "" {
		return errors.New("username is required")
	}
	draft, ok, err := seedRecord(couple)
	if err != nil {
		return err
	}

	password, hashed, err := newTempPassword()
	if err != nil {
		return err
	}

	var siteID uint
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("query user: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("user %q already exists (use reset-password)", username)
		}
		user := database.User{Username: username, PasswordHash: hashed, MustChangePassword: true}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if !ok {
			return nil
		}
		raw, err := json.Marshal(draft)
		if err != nil {
			return fmt.Errorf("encode site: %w", err)
		}
		s := database.Site{
			UserID: user.ID,
			Slug:   draft.Get(profile.KeySlug),
			Fields: datatypes.JSON(raw),
			Status: database.SiteDraft,
		}
		if err := tx.Create(&s).Error; err != nil {
			return fmt.Errorf("create site: %w", err)
		}
		siteID = s.ID
		return nil
	})
	if err != nil {
		return err
	}

	if siteID != 0 {
		fmt.Fprintf(out, "已初始化站点草稿（ID %d）。\n", siteID)
	}
	printCredentials(out, "已创建新人账号（首次登录需强制改密）", username, password)
	return nil
}

func resetPassword(db *gorm.DB, out io.Writer, username string) error {
	username = normalizeUsername(username)
	password, hashed, err := newTempPassword()
	if err != nil {
		return err
	}
	res := db.Model(&database.User{}).Where("username = ?", username).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": true,
	})
	if res.Error != nil {
		return fmt.Errorf("reset password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q not found", username)
	}
	printCredentials(out, "已重置账号密码（下次登录需强制改密）", username, password)
	return nil
}

// seedRecord 返回默认模板填入新人信息后的完整记录；信息不全时 ok 为 false。
func seedRecord(c coupleFlags) (profile.Record, bool, error) {
	rec := profile.Record{
		profile.KeyBrideName:   strings.TrimSpace(c.bride),
		profile.KeyGroomName:   strings.TrimSpace(c.groom),
		profile.KeyWeddingDate: strings.TrimSpace(c.date),
		profile.KeySlug:        strings.TrimSpace(c.slug),
	}
	if profile.ReadyToSave(rec) != nil {
		return nil, false, nil
	}
	if err := form.Check(rec); err != nil {
		return nil, false, fmt.Errorf("invalid site fields: %w", err)
	}
	return site.Build(rec).Record(), true, nil
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func newTempPassword() (plain, hashed string, err error) {
	buf := make([]byte, tempPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	hashed, err = auth.HashPassword(plain)
	if err != nil {
		return "", "", err
	}
	return plain, hashed, nil
}

func printCredentials(out io.Writer, title, username, password string) {
	fmt.Fprintf(out, "%s：\n", title)
	fmt.Fprintf(out, "用户名: %s\n", username)
	fmt.Fprintf(out, "临时密码: %s\n", password)
	fmt.Fprintln(out, "提示：请立即登录并修改密码（该密码仅显示一次）。")
}
