package stp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

func restingOrder(userID common.UserID, qty uint64) *pricelevel.Order {
	return &pricelevel.Order{
		ID:       common.NewOrderID(),
		Side:     common.Sell,
		Price:    100,
		Quantity: qty,
		UserID:   userID,
	}
}

func TestCheckAtLevel_NoneMode(t *testing.T) {
	action := CheckAtLevel(nil, uuid.New(), common.STPNone)
	assert.Equal(t, NoConflict, action.Kind)
}

func TestCheckAtLevel_AnonymousTakerBypasses(t *testing.T) {
	user := uuid.New()
	orders := []*pricelevel.Order{restingOrder(user, 10)}
	action := CheckAtLevel(orders, uuid.Nil, common.STPCancelTaker)
	assert.Equal(t, NoConflict, action.Kind)
}

func TestCheckAtLevel_CancelTaker_DetectsSameUser(t *testing.T) {
	user := uuid.New()
	orders := []*pricelevel.Order{restingOrder(user, 10)}
	action := CheckAtLevel(orders, user, common.STPCancelTaker)
	assert.Equal(t, CancelTaker, action.Kind)
	assert.Equal(t, uint64(0), action.SafeQuantity)
}

func TestCheckAtLevel_CancelTaker_SafeQuantityBeforeSelf(t *testing.T) {
	taker := uuid.New()
	other := uuid.New()
	orders := []*pricelevel.Order{
		restingOrder(other, 5),
		restingOrder(taker, 10),
	}
	action := CheckAtLevel(orders, taker, common.STPCancelTaker)
	assert.Equal(t, CancelTaker, action.Kind)
	assert.Equal(t, uint64(5), action.SafeQuantity)
}

func TestCheckAtLevel_CancelMaker_CollectsAllSameUserIDs(t *testing.T) {
	taker := uuid.New()
	other := uuid.New()

	same1 := restingOrder(taker, 5)
	betw := restingOrder(other, 3)
	same2 := restingOrder(taker, 7)

	action := CheckAtLevel([]*pricelevel.Order{same1, betw, same2}, taker, common.STPCancelMaker)
	assert.Equal(t, CancelMaker, action.Kind)
	assert.Equal(t, []common.OrderID{same1.ID, same2.ID}, action.MakerOrderIDs)
}

func TestCheckAtLevel_CancelBoth_DetectsSelf(t *testing.T) {
	user := uuid.New()
	other := uuid.New()

	otherOrder := restingOrder(other, 3)
	sameOrder := restingOrder(user, 10)

	action := CheckAtLevel([]*pricelevel.Order{otherOrder, sameOrder}, user, common.STPCancelBoth)
	assert.Equal(t, CancelBoth, action.Kind)
	assert.Equal(t, uint64(3), action.SafeQuantity)
	assert.Equal(t, sameOrder.ID, action.MakerOrderID)
}

func TestCheckAtLevel_NoConflictWhenDifferentUsers(t *testing.T) {
	taker := uuid.New()
	other := uuid.New()
	orders := []*pricelevel.Order{restingOrder(other, 10)}

	for _, mode := range []common.STPMode{common.STPCancelTaker, common.STPCancelMaker, common.STPCancelBoth} {
		action := CheckAtLevel(orders, taker, mode)
		assert.Equal(t, NoConflict, action.Kind, "mode %s", mode)
	}
}
