package database

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"x402-gateway/models"
)

var DB *gorm.DB

// Connect loads .env (when present) and opens the postgres pool.
func Connect() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using process environment")
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "db"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"), port)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.WithError(err).Fatal("could not connect to database")
	}
}

// AutoMigrate applies schema migrations. The unique index on
// used_intents.key is load-bearing: the postgres ledger's atomic reserve
// rides on it.
func AutoMigrate() {
	if err := DB.AutoMigrate(&models.User{}, &models.Job{}, &models.UsedIntent{}); err != nil {
		log.WithError(err).Fatal("automigrate failed")
	}
}

// SeedOperator creates the bootstrap operator account from
// ADMIN_EMAIL/ADMIN_PASSWORD when no users exist yet.
func SeedOperator() {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}

	var count int64
	DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	user := models.User{Email: email}
	user.SetPassword(password)
	if err := DB.Create(&user).Error; err != nil {
		log.WithError(err).Warn("could not seed operator account")
		return
	}
	log.WithField("email", email).Info("seeded operator account")
}
