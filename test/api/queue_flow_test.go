package api_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s %d", prefix, time.Now().UnixNano())
}

func addPatient(t *testing.T, name string) (patientID, entryID string) {
	t.Helper()
	resp := makeRequest("POST", "/frontdesk/patients", map[string]string{"name": name}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)

	patient, ok := resp.Data["patient"].(map[string]interface{})
	require.True(t, ok)
	entry, ok := resp.Data["entry"].(map[string]interface{})
	require.True(t, ok)

	return patient["id"].(string), entry["id"].(string)
}

func TestQueueFlow(t *testing.T) {
	aPatient, aEntry := addPatient(t, uniqueName("Flow A"))
	bPatient, _ := addPatient(t, uniqueName("Flow B"))

	// Both appear on the board in order.
	board := makeRequest("GET", "/frontdesk/queue", nil, authToken)
	require.True(t, board.IsSuccess(), board.Message)

	// B waits behind A.
	bState := makeRequest("GET", fmt.Sprintf("/patients/%s/queue", bPatient), nil, "")
	require.True(t, bState.IsSuccess(), bState.Message)
	assert.Equal(t, "waiting", bState.Data["view"])

	// Call A in.
	callResp := makeRequest("POST", "/frontdesk/queue/call-next", nil, authToken)
	require.True(t, callResp.IsSuccess(), callResp.Message)

	aState := makeRequest("GET", fmt.Sprintf("/patients/%s/queue", aPatient), nil, "")
	require.True(t, aState.IsSuccess(), aState.Message)
	assert.Equal(t, "your_turn", aState.Data["view"])
	assert.Equal(t, "called", aState.Data["status"])

	// Complete A; the patient gets the thank-you view.
	completeResp := makeRequest("POST", fmt.Sprintf("/frontdesk/queue/%s/complete", aEntry),
		map[string]string{"patient_id": aPatient}, authToken)
	require.True(t, completeResp.IsSuccess(), completeResp.Message)

	aState = makeRequest("GET", fmt.Sprintf("/patients/%s/queue", aPatient), nil, "")
	require.True(t, aState.IsSuccess(), aState.Message)
	assert.Equal(t, "thank_you", aState.Data["view"])

	// A duplicate complete is reported as already resolved, not an error.
	dup := makeRequest("POST", fmt.Sprintf("/frontdesk/queue/%s/complete", aEntry),
		map[string]string{"patient_id": aPatient}, authToken)
	require.True(t, dup.IsSuccess(), dup.Message)

	// Clean up B.
	bBoard := makeRequest("GET", fmt.Sprintf("/patients/%s/queue", bPatient), nil, "")
	require.True(t, bBoard.IsSuccess(), bBoard.Message)
}

func TestSelfRegistrationRequiresPhone(t *testing.T) {
	resp := makeRequest("POST", "/patients", map[string]string{"name": uniqueName("No Phone")}, "")
	assert.False(t, resp.IsSuccess())

	resp = makeRequest("POST", "/patients", map[string]string{
		"name":  uniqueName("Self Registered"),
		"phone": "0612345678",
	}, "")
	assert.True(t, resp.IsSuccess(), resp.Message)
}

func TestFrontdeskRequiresSession(t *testing.T) {
	resp := makeRequest("GET", "/frontdesk/queue", nil, "")
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, 401, resp.Code)
}

func TestSessionRejectsWrongPIN(t *testing.T) {
	resp := makeRequest("POST", "/auth/session", map[string]string{"pin": "0000"}, "")
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, 401, resp.Code)
}
