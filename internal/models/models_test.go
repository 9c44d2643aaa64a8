package models

import (
	"testing"
	"time"

	"gedvault/internal/common"

	"github.com/stretchr/testify/require"
)

func TestParsePermissionKind(t *testing.T) {
	for _, kind := range AllPermissionKinds {
		parsed, err := ParsePermissionKind(string(kind))
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}

	for _, raw := range []string{"", "admin", "VIEW", "view "} {
		_, err := ParsePermissionKind(raw)
		require.Error(t, err, "应拒绝 %q", raw)
		require.True(t, common.IsKind(err, common.KindValidation))
	}
}

func TestGrantIsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	permanent := PermissionGrant{}
	require.False(t, permanent.IsExpired(now), "无过期时间的授权永久有效")

	future := now.Add(time.Hour)
	require.False(t, (&PermissionGrant{ExpiresAt: &future}).IsExpired(now))

	past := now.Add(-time.Hour)
	require.True(t, (&PermissionGrant{ExpiresAt: &past}).IsExpired(now))

	exact := now
	require.True(t, (&PermissionGrant{ExpiresAt: &exact}).IsExpired(now), "恰好到期视为过期")
}

func TestUserPasswordHashing(t *testing.T) {
	user := &User{}
	require.NoError(t, user.SetPassword("s3cret-pass"))
	require.NotEqual(t, "s3cret-pass", user.PasswordHash)
	require.True(t, user.CheckPassword("s3cret-pass"))
	require.False(t, user.CheckPassword("wrong"))
}

func TestValidateStages(t *testing.T) {
	require.Error(t, ValidateStages(nil))
	require.Error(t, ValidateStages([]Stage{{Name: "审核"}}))
	require.Error(t, ValidateStages([]Stage{{Approvers: []string{"a"}}}))
	require.Error(t, ValidateStages([]Stage{{Name: "审核", Approvers: []string{""}}}))
	require.NoError(t, ValidateStages([]Stage{
		{Name: "审核", Approvers: []string{"a"}},
		{Name: "会签", Approvers: []string{"b", "c"}, RequireAll: true},
	}))
}

func TestStageRoundTrip(t *testing.T) {
	wf := &WorkflowDefinition{}
	stages := []Stage{
		{Name: "部门审核", Approvers: []string{"m1", "m2"}, RequireAll: true},
		{Name: "法务审核", Approvers: []string{"legal"}},
	}
	require.NoError(t, wf.SetStages(stages))

	decoded, err := wf.DecodeStages()
	require.NoError(t, err)
	require.Equal(t, stages, decoded)

	require.True(t, decoded[0].HasApprover("m2"))
	require.False(t, decoded[0].HasApprover("legal"))
}
