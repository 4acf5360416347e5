// Package actors holds the concurrent workloads of the stress harness. Each
// actor loops one maintenance operation against the real services until told
// to stop; errors are expected under chaos (killed backends, lock contention)
// and only context cancellation ends an actor early.
package actors

import (
	"context"
	"math/rand"
	"time"

	"productmaster/attribute"
	"productmaster/channel"
	"productmaster/claim"
	"productmaster/outbox"
	"productmaster/threshold"
)

const (
	actingUser    = "stress"
	actingProgram = "stress-harness"
)

func pause(minMS, spreadMS int) {
	time.Sleep(time.Duration(minMS+rand.Intn(spreadMS)) * time.Millisecond)
}

func done(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// WindowAdder keeps opening availability windows on one dimension, racing
// other adders and enders for the same rows.
func WindowAdder(ctx context.Context, svc *channel.Service, productID, sales, fulfillment string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		eff := time.Now().UTC().AddDate(0, 0, rand.Intn(60))
		_, _ = svc.Add(ctx, channel.AddRequest{
			ProductID:          productID,
			SalesChannel:       sales,
			FulfillmentChannel: fulfillment,
			Effective:          eff,
			Expiration:         eff.AddDate(0, rand.Intn(6)+1, 0),
			ActingUser:         actingUser,
			ActingProgram:      actingProgram,
		})
		pause(10, 30)
	}
	return ctx.Err()
}

// WindowEnder keeps terminating whatever window currently governs the
// dimension.
func WindowEnder(ctx context.Context, svc *channel.Service, productID, sales, fulfillment string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		_, _ = svc.End(ctx, channel.EndRequest{
			ProductID:          productID,
			SalesChannel:       sales,
			FulfillmentChannel: fulfillment,
			EndDate:            time.Now().UTC().AddDate(0, 0, rand.Intn(30)),
			ActingUser:         actingUser,
			ActingProgram:      actingProgram,
		})
		pause(30, 50)
	}
	return ctx.Err()
}

// ThresholdUpserter hammers the capped upsert with a small quantity set so
// the cap and the tie-break both get exercised.
func ThresholdUpserter(ctx context.Context, svc *threshold.Service, productID string, stop <-chan struct{}) error {
	quantities := []int{5, 10, 25, 50, 100, 250, 500}
	types := []string{"CASE", "PALLET", "PROMO"}
	for !done(ctx, stop) {
		_, _ = svc.Upsert(ctx, threshold.UpsertRequest{
			ProductID:       productID,
			ThresholdType:   types[rand.Intn(len(types))],
			Quantity:        quantities[rand.Intn(len(quantities))],
			DiscountPercent: float64(rand.Intn(40) + 1),
			ActingUser:      actingUser,
			ActingProgram:   actingProgram,
		})
		pause(15, 35)
	}
	return ctx.Err()
}

// AttributeSetter rewrites a multi-valued attribute with lists of varying
// length, exercising the sequence reconciliation.
func AttributeSetter(ctx context.Context, svc *attribute.Service, productID, attributeID string, stop <-chan struct{}) error {
	palette := []string{"red", "blue", "green", "mauve", "teal"}
	for !done(ctx, stop) {
		n := rand.Intn(4)
		values := make([]string, 0, n)
		for _, v := range palette[:n] {
			values = append(values, v)
		}
		_, _ = svc.Set(ctx, attribute.SetRequest{
			ProductID:     productID,
			AttributeID:   attributeID,
			Values:        values,
			ActingUser:    actingUser,
			ActingProgram: actingProgram,
		})
		pause(20, 40)
	}
	return ctx.Err()
}

// ClaimToggler alternates applying and revoking one claim.
func ClaimToggler(ctx context.Context, svc *claim.Service, productID, claimCode string, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		if rand.Intn(2) == 0 {
			_, _ = svc.Apply(ctx, claim.ApplyRequest{
				ProductID:     productID,
				ClaimCode:     claimCode,
				Text:          "certified",
				ActingUser:    actingUser,
				ActingProgram: actingProgram,
			})
		} else {
			_, _ = svc.Revoke(ctx, claim.RevokeRequest{
				ProductID:     productID,
				ClaimCode:     claimCode,
				ActingUser:    actingUser,
				ActingProgram: actingProgram,
			})
		}
		pause(40, 60)
	}
	return ctx.Err()
}

// OutboxDrainer plays the relay without a broker: it marks pending events
// sent, with an occasional simulated failure so retry bookkeeping is
// exercised too.
func OutboxDrainer(ctx context.Context, repo *outbox.Repository, stop <-chan struct{}) error {
	for !done(ctx, stop) {
		events, err := repo.Pending(ctx, 20)
		if err != nil {
			pause(50, 50)
			continue
		}
		for _, e := range events {
			if rand.Intn(10) == 0 {
				_ = repo.MarkFailed(ctx, e.ID, "simulated publish failure")
				continue
			}
			_ = repo.MarkSent(ctx, e.ID)
		}
		pause(80, 40)
	}
	return ctx.Err()
}
