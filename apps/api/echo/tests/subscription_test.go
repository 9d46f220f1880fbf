package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedesk/core/subscription"
	"github.com/trezcool/feedesk/testutil"
)

func Test_adminOnlyRoutes(t *testing.T) {
	env, app := setup(t)
	teacher := getToken(t, env, testutil.Teacher("t1"))
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "register teacher", method: http.MethodPost, path: "/v1/teachers", body: []byte(`{"id":"t2","name":"T2"}`)},
		{name: "override status", method: http.MethodPut, path: "/v1/teachers/t1/status", body: []byte(`{"status":"active"}`)},
		{name: "create plan", method: http.MethodPost, path: "/v1/plans", body: []byte(`{"name":"Gold"}`)},
		{name: "payment counts", method: http.MethodGet, path: "/v1/subscriptions/payments/counts"},
		{name: "decide", method: http.MethodPost, path: "/v1/subscriptions/payments/x/decision", body: []byte(`{"decision":"verify"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token, tt.wantCode, tt.wantData = teacher, http.StatusForbidden, forbidden
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_subscriptionFlow(t *testing.T) {
	env, app := setup(t)
	admin := getToken(t, env, testutil.Admin)
	teacher := getToken(t, env, testutil.Teacher("t1"))

	req, rec := newAuthRequest(http.MethodPost, "/v1/teachers", admin, []byte(`{"id":"t1","name":"Asha"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/teachers", admin, []byte(`{"id":"t1","name":"Asha"}`))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/plans", admin, []byte(`{"name":"Gold","price":"0","duration_months":1,"max_batches":2}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"price": "price must be a positive amount with at most 2 decimal places"}),
	}, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/plans", admin,
		[]byte(`{"name":"Gold","price":"1499.00","duration_months":3,"max_batches":2,"upi_id":"coach@upi","account_holder":"Feedesk"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var plan subscription.Plan
	unmarshal(t, rec, &plan)
	assert.NotEmpty(t, plan.QRImageURL)

	req, rec = newAuthRequest(http.MethodGet, "/v1/plans", teacher)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []subscription.Plan
	unmarshal(t, rec, &plans)
	assert.Len(t, plans, 1)

	submit := func(t *testing.T) subscription.Payment {
		req, rec := newMultipartRequest(t, "/v1/subscriptions/payments", teacher, map[string]string{"plan_id": plan.ID}, "upi.png")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var p subscription.Payment
		unmarshal(t, rec, &p)
		return p
	}
	decide := func(t *testing.T, paymentID, decision string) (*subscription.Outcome, int) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subscriptions/payments/"+paymentID+"/decision", admin,
			marchallObj(t, map[string]string{"decision": decision}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return nil, rec.Code
		}
		var outcome subscription.Outcome
		unmarshal(t, rec, &outcome)
		return &outcome, rec.Code
	}
	status := func(t *testing.T) subscription.Status {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teachers/t1/status", teacher)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Status subscription.Status `json:"status"`
		}
		unmarshal(t, rec, &resp)
		return resp.Status
	}

	assert.Equal(t, subscription.StatusLocked, status(t))

	rejected := submit(t)
	assert.Equal(t, subscription.PaymentPending, rejected.Status)
	assert.True(t, rejected.Amount.Equal(plan.Price))

	req, rec = newAuthRequest(http.MethodGet, "/v1/subscriptions/payments/counts", admin)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"pending":1,"rejected":0}`)}, rec)

	outcome, code := decide(t, rejected.ID, "reject")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, subscription.PaymentRejected, outcome.Payment.Status)
	assert.Equal(t, subscription.StatusLocked, status(t))

	_, code = decide(t, rejected.ID, "verify")
	assert.Equal(t, http.StatusConflict, code)
	_, code = decide(t, rejected.ID, "maybe")
	assert.Equal(t, http.StatusBadRequest, code)

	verified := submit(t)
	outcome, code = decide(t, verified.ID, "verify")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, subscription.StatusActive, outcome.Teacher.Status)
	assert.Equal(t, plan.ID, outcome.Teacher.Subscription.PlanID)
	assert.True(t, outcome.Teacher.Subscription.EndDate.Equal(subscription.EndDate(outcome.Teacher.Subscription.StartDate, 3)))
	assert.Equal(t, subscription.StatusActive, status(t))

	t.Run("payment visibility", func(t *testing.T) {
		env.RegisterTeacher(t, "t2")
		req, rec := newAuthRequest(http.MethodGet, "/v1/subscriptions/payments", getToken(t, env, testutil.Teacher("t2")))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`[]`)}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/v1/subscriptions/payments", teacher)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var payments []subscription.Payment
		unmarshal(t, rec, &payments)
		assert.Len(t, payments, 2)
	})

	t.Run("manual override", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/teachers/t1/status", admin, []byte(`{"status":"locked"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, subscription.StatusLocked, status(t))

		req, rec = newAuthRequest(http.MethodPut, "/v1/teachers/t1/status", admin, []byte(`{"status":"frozen"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/teachers/t1/status", getToken(t, env, testutil.Teacher("t2")))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
