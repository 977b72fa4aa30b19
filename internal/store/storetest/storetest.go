// Package storetest provides database fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/internal/store"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

var dbSeq atomic.Int64

// DB opens a fresh, migrated in-memory sqlite database for one test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := store.Open(store.Config{
		Driver:   store.DriverSQLite,
		DSN:      dsn,
		LogLevel: "silent",
	}, logger.NewNop())
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}

	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedProfile inserts a child profile.
func SeedProfile(tb testing.TB, ctx context.Context, db *gorm.DB, id, firstName string) *model.UserProfile {
	tb.Helper()
	p := &model.UserProfile{
		ID:           id,
		FirstName:    firstName,
		Grade:        "4",
		City:         "Lisbon",
		DailyTarget:  2,
		WeeklyTarget: 7,
	}
	if err := store.NewProfileStore(db).UpsertProfile(ctx, p); err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// SeedConversation creates a conversation with n alternating messages.
// Message and conversation timestamps come from the stores' clock.
func SeedConversation(tb testing.TB, ctx context.Context, convs *store.ConversationStore, msgs *store.MessageStore, ownerID string, n int) *model.Conversation {
	tb.Helper()
	conv, err := convs.CreateConversation(ctx, ownerID)
	if err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		m, err := msgs.CreateMessage(ctx, role, model.TextBlocks(fmt.Sprintf("turn %d", i)), conv.ID)
		if err != nil {
			tb.Fatalf("seed message %d: %v", i, err)
		}
		if conv, err = convs.AppendMessage(ctx, conv.ID, m.ID); err != nil {
			tb.Fatalf("seed append %d: %v", i, err)
		}
	}
	return conv
}
