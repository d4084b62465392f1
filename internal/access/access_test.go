package access

import (
	"testing"

	"github.com/jarrod-lowe/publication-registry/internal/entity"
)

func TestRights_IsOwner(t *testing.T) {
	r := &entity.Resource{Owner: "owner@1"}

	tests := []struct {
		name  string
		actor Actor
		res   *entity.Resource
		want  bool
	}{
		{name: "owner", actor: Actor{Username: "owner@1"}, res: r, want: true},
		{name: "other user", actor: Actor{Username: "other@1"}, res: r, want: false},
		{name: "anonymous", actor: Actor{}, res: &entity.Resource{}, want: false},
		{name: "nil resource", actor: Actor{Username: "owner@1"}, res: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Rights{}).IsOwner(tt.actor, tt.res); got != tt.want {
				t.Errorf("IsOwner() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasRightOn(t *testing.T) {
	curator := Actor{Username: "curator@1", OrganizationID: "org-1", Rights: []Right{RightApproveDoiRequest}}

	if !HasRightOn(Rights{}, curator, RightApproveDoiRequest, "org-1") {
		t.Error("expected right within own organization")
	}
	if HasRightOn(Rights{}, curator, RightApproveDoiRequest, "org-2") {
		t.Error("expected no right in another organization")
	}
	if HasRightOn(Rights{}, curator, RightSupport, "org-1") {
		t.Error("expected no right that was not granted")
	}
}

func TestCuratorRight(t *testing.T) {
	tests := []struct {
		kind entity.TicketKind
		want Right
	}{
		{entity.KindDoiRequest, RightApproveDoiRequest},
		{entity.KindPublishingRequest, RightApprovePublishRequest},
		{entity.KindGeneralSupportRequest, RightSupport},
	}

	for _, tt := range tests {
		if got := CuratorRight(tt.kind); got != tt.want {
			t.Errorf("CuratorRight(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
