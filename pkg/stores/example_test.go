package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/froyo-age/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing an audit store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_RecordDecrypt demonstrates auditing a decryption.
func ExampleSQLiteStore_RecordDecrypt() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	err := store.RecordDecrypt(ctx, &stores.DecryptRecord{
		Operation:      "importAge",
		CiphertextPath: "/srv/secrets/db.age",
		IdentityCount:  1,
		Status:         stores.AuditStatusSucceeded,
	})
	if err != nil {
		log.Fatal(err)
	}

	count, _ := store.CountDecrypts(ctx, stores.DecryptFilter{})
	fmt.Printf("Audit entries: %d\n", count)
	// Output: Audit entries: 1
}
