package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
)

// AddMemberRequest selects a freelancer for a role.
type AddMemberRequest struct {
	FreelancerID string `json:"freelancer_id"`
	Role         string `json:"role"`
}

// AddMember invites a freelancer chosen by the client or an admin.
func (s *Service) AddMember(ctx context.Context, actor access.Actor, id string, req AddMemberRequest) (*Member, error) {
	if strings.TrimSpace(req.FreelancerID) == "" || strings.TrimSpace(req.Role) == "" {
		return nil, ErrInvalidInput
	}

	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status.Terminal() {
		return nil, ErrNotEditable
	}
	role, ok := proj.Role(req.Role)
	if !ok {
		return nil, ErrUnknownRole
	}
	if existing, ok := proj.Member(req.FreelancerID); ok && existing.Active() {
		return nil, ErrMemberExists
	}
	if proj.ActiveInRole(role.Name) >= role.Quantity {
		return nil, ErrRoleFull
	}
	if s.profiles != nil {
		prof, err := s.profiles.GetProfile(ctx, req.FreelancerID)
		if err != nil {
			return nil, fmt.Errorf("loading freelancer profile: %w", err)
		}
		if !prof.Active() {
			return nil, ErrMemberNotActive
		}
	}

	selectedBy := SelectedByClient
	if actor.IsAdmin() {
		selectedBy = SelectedByAdmin
	}
	now := time.Now()
	member := &Member{
		ProjectID:    id,
		FreelancerID: req.FreelancerID,
		Role:         role.Name,
		Status:       MemberChecking,
		SelectedBy:   selectedBy,
		SelectedAt:   now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpsertMember(ctx, member); err != nil {
			return fmt.Errorf("adding member: %w", err)
		}
		if proj.Status == StatusNotStarted {
			proj.Status = StatusTeamSelection
			proj.UpdatedAt = now
			if err := s.repo.Update(ctx, proj); err != nil {
				return fmt.Errorf("updating project status: %w", err)
			}
		}
		return s.log(ctx, actor, id, activity.TypeMemberInvited,
			fmt.Sprintf("invited %s as %s", member.FreelancerID, member.Role), 0, map[string]any{"selected_by": selectedBy})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, member.FreelancerID, EventInvitation, map[string]any{
		"project_id": id,
		"title":      proj.Title,
		"role":       member.Role,
		"expires_at": member.SelectedAt.Add(s.invitationTTL),
	})
	return member, nil
}

// RemoveMember takes a freelancer off the team. Members with open tasks or
// locked payouts stay.
func (s *Service) RemoveMember(ctx context.Context, actor access.Actor, id, freelancerID string) error {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return err
	}
	member, ok := proj.Member(freelancerID)
	if !ok {
		return ErrMemberNotFound
	}

	openTasks, err := s.tasks.CountOpen(ctx, id, freelancerID)
	if err != nil {
		return fmt.Errorf("counting open tasks: %w", err)
	}
	lockedPayouts, err := s.payouts.CountLocked(ctx, id, freelancerID)
	if err != nil {
		return fmt.Errorf("counting locked payouts: %w", err)
	}
	if openTasks > 0 || lockedPayouts > 0 {
		return ErrMemberHasOpenWork
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DeleteMember(ctx, id, freelancerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("removing member: %w", err)
		}
		return s.log(ctx, actor, id, activity.TypeMemberRemoved,
			fmt.Sprintf("removed %s from %s", freelancerID, member.Role), 0, nil)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, freelancerID, EventMemberRemoved, map[string]any{"project_id": id, "title": proj.Title})
	return nil
}

// PromoteMember makes an accepted member the team lead.
func (s *Service) PromoteMember(ctx context.Context, actor access.Actor, id, freelancerID string) (*Member, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	member, ok := proj.Member(freelancerID)
	if !ok {
		return nil, ErrMemberNotFound
	}
	if member.Status != MemberAccepted {
		return nil, ErrMemberNotAccepted
	}
	if member.IsLead {
		return member, nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetLead(ctx, id, freelancerID); err != nil {
			return fmt.Errorf("promoting member: %w", err)
		}
		return s.log(ctx, actor, id, activity.TypeMemberPromoted, fmt.Sprintf("%s is team lead", freelancerID), 0, nil)
	})
	if err != nil {
		return nil, err
	}

	member.IsLead = true
	s.notify(ctx, freelancerID, EventMemberPromoted, map[string]any{"project_id": id, "title": proj.Title})
	return member, nil
}

// RespondInvitation records the invited freelancer's answer. Declined and
// expired invitations re-run recruitment unless selection is manual.
func (s *Service) RespondInvitation(ctx context.Context, actor access.Actor, id string, accept bool) (*Member, error) {
	member, proj, respondErr := s.respond(ctx, actor, id, accept)
	if member == nil {
		return nil, respondErr
	}

	if member.Status == MemberNotAccepted && proj.SelectionType != SelectionManual && s.recruiter != nil {
		if _, err := s.recruiter.Fill(ctx, id); err != nil {
			s.logger.Warn("auto recruitment after rejection", "project_id", id, "error", err)
		}
	}
	if respondErr != nil {
		return nil, respondErr
	}
	return member, nil
}

func (s *Service) respond(ctx context.Context, actor access.Actor, id string, accept bool) (*Member, *Project, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	member, ok := proj.Member(actor.ID)
	if !ok {
		return nil, nil, ErrMemberNotFound
	}
	if member.Status != MemberChecking {
		return nil, nil, ErrNotInvited
	}

	now := time.Now()
	expired := now.Sub(member.SelectedAt) >= s.invitationTTL
	switch {
	case expired:
		member.Status = MemberNotAccepted
	case accept:
		member.Status = MemberAccepted
	default:
		member.Status = MemberNotAccepted
	}
	member.RespondedAt = &now

	typ := activity.TypeMemberResponded
	summary := fmt.Sprintf("%s answered %s", member.FreelancerID, member.Status)
	if expired {
		typ = activity.TypeInvitationExpired
		summary = fmt.Sprintf("invitation for %s expired", member.FreelancerID)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpsertMember(ctx, member); err != nil {
			return fmt.Errorf("recording answer: %w", err)
		}
		return s.log(ctx, actor, id, typ, summary, 0, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	event := EventInvitationAnswer
	if expired {
		event = EventInvitationExpired
	}
	s.notify(ctx, proj.ClientID, event, map[string]any{
		"project_id":    id,
		"freelancer_id": member.FreelancerID,
		"status":        member.Status,
	})

	if expired {
		return member, proj, ErrInvitationExpired
	}
	return member, proj, nil
}
