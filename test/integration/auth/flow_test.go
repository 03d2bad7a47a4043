// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

//go:build integration

package auth_test

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

var _ = Describe("Account lifecycle over REST", func() {
	BeforeEach(func() {
		truncateAccounts()
	})

	It("registers, logs in, edits the profile, changes the password and logs out", func() {
		reg := call(http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":      "  Chef@Example.COM ",
			"password":   "Secret123",
			"first_name": "Julia",
			"last_name":  "Child",
		})
		Expect(reg.Status).To(Equal(http.StatusCreated))
		Expect(reg.Body["message"]).To(Equal("User registered successfully"))
		Expect(reg.Body["access_token"]).NotTo(BeEmpty())
		Expect(userOf(reg)["email"]).To(Equal("chef@example.com"))
		Expect(userOf(reg)["subscription_tier"]).To(Equal("free"))
		Expect(userOf(reg)).NotTo(HaveKey("password_hash"))

		login := call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "chef@example.com", "password": "Secret123",
		})
		Expect(login.Status).To(Equal(http.StatusOK))
		Expect(userOf(login)["last_login"]).NotTo(BeNil())
		token := login.Body["access_token"].(string)

		profile := call(http.MethodGet, "/api/auth/profile", token, nil)
		Expect(profile.Status).To(Equal(http.StatusOK))
		Expect(userOf(profile)["first_name"]).To(Equal("Julia"))

		updated := call(http.MethodPut, "/api/auth/profile", token, map[string]string{"last_name": "McWilliams"})
		Expect(updated.Status).To(Equal(http.StatusOK))
		Expect(userOf(updated)["first_name"]).To(Equal("Julia"))
		Expect(userOf(updated)["last_name"]).To(Equal("McWilliams"))

		weak := call(http.MethodPost, "/api/auth/change-password", token, map[string]string{
			"current_password": "Secret123", "new_password": "short",
		})
		Expect(weak.Status).To(Equal(http.StatusBadRequest))
		Expect(weak.Body["code"]).To(Equal(auth.CodeWeakPassword))

		changed := call(http.MethodPost, "/api/auth/change-password", token, map[string]string{
			"current_password": "Secret123", "new_password": "Better456",
		})
		Expect(changed.Status).To(Equal(http.StatusOK))

		oldLogin := call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "chef@example.com", "password": "Secret123",
		})
		Expect(oldLogin.Status).To(Equal(http.StatusUnauthorized))
		Expect(oldLogin.Body["error"]).To(Equal("Invalid email or password"))

		Expect(call(http.MethodPost, "/api/auth/logout", token, nil).Status).To(Equal(http.StatusOK))

		verify := call(http.MethodPost, "/api/auth/verify-token", token, nil)
		Expect(verify.Status).To(Equal(http.StatusOK))
		Expect(verify.Body["valid"]).To(BeTrue())

		activity := call(http.MethodGet, "/api/auth/activity", token, nil)
		Expect(activity.Status).To(Equal(http.StatusOK))
		entries := activity.Body["activities"].([]any)
		types := make([]string, 0, len(entries))
		for _, e := range entries {
			types = append(types, e.(map[string]any)["activity_type"].(string))
		}
		Expect(types).To(Equal([]string{
			"logout", "password_changed", "profile_updated", "login", "registered",
		}))
		Expect(entries[2].(map[string]any)["metadata"]).To(HaveKeyWithValue("updated_fields", "last_name"))
	})

	It("rejects a duplicate email case-insensitively", func() {
		body := map[string]string{"email": "dup@example.com", "password": "Secret123"}
		Expect(call(http.MethodPost, "/api/auth/register", "", body).Status).To(Equal(http.StatusCreated))

		body["email"] = "DUP@example.com"
		again := call(http.MethodPost, "/api/auth/register", "", body)
		Expect(again.Status).To(Equal(http.StatusConflict))
		Expect(again.Body["code"]).To(Equal(auth.CodeEmailTaken))
	})

	It("admits exactly one of many concurrent registrations for the same email", func() {
		const racers = 8
		statuses := make(chan int, racers)
		var wg sync.WaitGroup
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- call(http.MethodPost, "/api/auth/register", "", map[string]string{
					"email": "race@example.com", "password": "Secret123",
				}).Status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for s := range statuses {
			counts[s]++
		}
		Expect(counts).To(Equal(map[int]int{http.StatusCreated: 1, http.StatusConflict: racers - 1}))

		var stored int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM accounts WHERE email = 'race@example.com'`).Scan(&stored)).To(Succeed())
		Expect(stored).To(Equal(1))
	})

	It("refuses deactivated accounts at login and token verification", func() {
		reg := call(http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "gone@example.com", "password": "Secret123",
		})
		Expect(reg.Status).To(Equal(http.StatusCreated))
		token := reg.Body["access_token"].(string)
		id, err := ulid.Parse(userOf(reg)["id"].(string))
		Expect(err).NotTo(HaveOccurred())

		Expect(env.Accounts.SetActive(env.ctx, id, false)).To(Succeed())

		login := call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "gone@example.com", "password": "Secret123",
		})
		Expect(login.Status).To(Equal(http.StatusUnauthorized))
		Expect(login.Body["code"]).To(Equal(auth.CodeAccountDeactivated))

		verify := call(http.MethodPost, "/api/auth/verify-token", token, nil)
		Expect(verify.Status).To(Equal(http.StatusUnauthorized))
	})

	It("upgrades a legacy SHA-256 digest on the first successful login", func() {
		sum := sha256.Sum256([]byte("Legacy123"))
		now := time.Now().UTC()
		account := &auth.Account{
			ID:               ulid.Make(),
			Email:            "legacy@example.com",
			PasswordHash:     hex.EncodeToString(sum[:]),
			SubscriptionTier: auth.TierPremium,
			EmailVerified:    true,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		Expect(env.Accounts.Create(env.ctx, account)).To(Succeed())

		login := call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "legacy@example.com", "password": "Legacy123",
		})
		Expect(login.Status).To(Equal(http.StatusOK))
		Expect(userOf(login)["subscription_tier"]).To(Equal("premium"))

		stored, err := env.Accounts.GetByID(env.ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.HasPrefix(stored.PasswordHash, "$argon2id$")).To(BeTrue())
		Expect(stored.LastLogin).NotTo(BeNil())

		again := call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "legacy@example.com", "password": "Legacy123",
		})
		Expect(again.Status).To(Equal(http.StatusOK))
	})

	It("reports database health", func() {
		health := call(http.MethodGet, "/healthz", "", nil)
		Expect(health.Status).To(Equal(http.StatusOK))
		Expect(health.Body).To(HaveKeyWithValue("status", "ok"))
	})
})
