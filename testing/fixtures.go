package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates a user with a random telegram id. referrerID and percent may be nil.
func (tf *TestFixtures) CreateTestUser(referrerID *uint, percent *decimal.Decimal) (*models.User, error) {
	user := &models.User{
		TelegramID:      rand.Int63n(9_000_000_000) + 1_000_000_000,
		Username:        fmt.Sprintf("user_%d", rand.Intn(1_000_000)),
		Balance:         decimal.Zero,
		ReferralBalance: decimal.Zero,
		ReferrerID:      referrerID,
		ReferralPercent: percent,
	}
	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestTopUp creates a created top-up for userID expiring in one hour
func (tf *TestFixtures) CreateTestTopUp(userID uint, provider models.PaymentProvider, amount decimal.Decimal) (*models.TopUp, error) {
	expiresAt := utils.UTCNowAdd(time.Hour)
	topUp := &models.TopUp{
		UUID:          uuid.New(),
		CorrelationID: uuid.New(),
		UserID:        userID,
		Provider:      provider,
		OrderID:       fmt.Sprintf("%d", rand.Int63n(1_000_000_000)),
		Amount:        amount,
		PayURL:        "https://pay.example.com/invoice",
		Status:        models.TopUpStatusCreated,
		ExpiresAt:     &expiresAt,
	}
	if err := tf.DB.DB.Create(topUp).Error; err != nil {
		return nil, fmt.Errorf("failed to create test top-up: %w", err)
	}
	return topUp, nil
}
