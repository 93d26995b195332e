package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"atelier-chat/auth"
	"atelier-chat/repositories"
)

type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	AuthSigningKey    string        `env:"AUTH_SIGNING_KEY,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	Projects          int           `env:"SEED_PROJECTS"`
}

// Seeds a demo dataset: one client and one designer per project, and
// prints ready-to-use tokens for the terminal client.
func main() {
	gofakeit.Seed(time.Now().UnixNano())

	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.Projects <= 0 {
		config.Projects = 3
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	users := repositories.NewUserRepository(db)
	projects := repositories.NewProjectRepository(db)
	codec := auth.NewTokenCodec(config.AuthSigningKey)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Project", "Role", "Name", "User ID", "Token"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	now := time.Now().UTC()
	for i := 0; i < config.Projects; i++ {
		projectID := fmt.Sprintf("proj-%d", i+1)
		clientRow, err := seedUser(users, codec, config.AuthTokenDuration, now)
		if err != nil {
			log.Fatalf("Failed to seed client: %v", err)
		}
		designerRow, err := seedUser(users, codec, config.AuthTokenDuration, now)
		if err != nil {
			log.Fatalf("Failed to seed designer: %v", err)
		}

		err = projects.UpsertProject(repositories.ProjectRecord{
			ID:         projectID,
			ClientID:   clientRow.id,
			DesignerID: designerRow.id,
			CreatedAt:  now,
		})
		if err != nil {
			log.Fatalf("Failed to seed project: %v", err)
		}

		table.Append([]string{projectID, "client", clientRow.name, clientRow.id, clientRow.token})
		table.Append([]string{projectID, "designer", designerRow.name, designerRow.id, designerRow.token})
	}

	fmt.Printf("Seeded %d project(s)\n\n", config.Projects)
	table.Render()
}

type seededUser struct {
	id    string
	name  string
	token string
}

func seedUser(users repositories.IUserRepository, codec *auth.TokenCodec, duration time.Duration, now time.Time) (seededUser, error) {
	id := "u-" + uuid.NewString()
	subject := gofakeit.Email()
	name := gofakeit.Name()

	err := users.UpsertUser(repositories.UserRecord{
		ID:        id,
		Subject:   subject,
		Name:      name,
		Avatar:    gofakeit.ImageURL(128, 128),
		CreatedAt: now,
	})
	if err != nil {
		return seededUser{}, err
	}
	token, err := codec.Generate(subject, duration)
	if err != nil {
		return seededUser{}, err
	}
	return seededUser{id: id, name: name, token: token}, nil
}
