package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// Bootstraps the first super admin account. Registration notifications go to
// super admins, so a fresh deployment needs at least one before it is useful.
func main() {
	email := flag.String("email", "", "super admin email")
	password := flag.String("password", "", "super admin password")
	fullName := flag.String("name", "Portal Administrator", "full name")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("both -email and -password are required")
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	databaseName := os.Getenv("DATABASE_NAME")
	if databaseName == "" {
		databaseName = "elearn_portal"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(ctx)

	collection := client.Database(databaseName).Collection("users")

	count, err := collection.CountDocuments(ctx, bson.M{"email": *email})
	if err != nil {
		log.Fatal(err)
	}
	if count > 0 {
		log.Fatalf("user %s already exists", *email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	result, err := collection.InsertOne(ctx, bson.M{
		"email":         *email,
		"password_hash": string(hash),
		"full_name":     *fullName,
		"role":          "super_admin",
		"is_active":     true,
		"created_at":    now,
		"updated_at":    now,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Created super admin %s (%v)\n", *email, result.InsertedID)
}
