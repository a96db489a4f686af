// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/plan"
	"github.com/lanternworks/drydock/proposal"
)

// boolConfirm turns a request flag into a ConfirmFunc: true approves
// everything, false declines everything. The HTTP surface has no interactive
// prompt, so consent travels in the request body.
func boolConfirm(approved bool) proposal.ConfirmFunc {
	if !approved {
		return nil
	}
	return func(string) bool { return true }
}

type diffRequest struct {
	Patch string `json:"patch" binding:"required"`
}

type revertRequest struct {
	Snapshots []diffapply.FileSnapshot `json:"snapshots" binding:"required"`
}

type proposeRequest struct {
	Prompt       string `json:"prompt"`
	Patch        string `json:"patch"`
	ApproveEvict bool   `json:"approveEvict"`
}

type applyProposalRequest struct {
	ApproveDataLoss bool `json:"approveDataLoss"`
}

type repairRequest struct {
	TouchedFiles []string `json:"touchedFiles"`
}

// HandleHealth reports liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandlePreviewDiff validates and previews a unified diff.
func HandlePreviewDiff(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req diffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		preview, validation, err := svc.PreviewDiff(c.Request.Context(), req.Patch)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "validation": validation})
			return
		}
		c.JSON(http.StatusOK, gin.H{"preview": preview, "validation": validation})
	}
}

// HandleApplyDiff applies a unified diff directly.
func HandleApplyDiff(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req diffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		outcome, err := svc.ApplyDiff(c.Request.Context(), req.Patch)
		if err != nil {
			// Partial outcomes matter: snapshots captured before the failure
			// are the caller's only undo handle.
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "outcome": outcome})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// HandleRevert restores a snapshot list.
func HandleRevert(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		outcome := svc.RevertSnapshots(c.Request.Context(), req.Snapshots)
		c.JSON(http.StatusOK, outcome)
	}
}

// HandlePreviewPlan previews a structured edit plan.
func HandlePreviewPlan(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		p, err := plan.ParsePlan(body)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		previews, err := svc.PreviewPlan(c.Request.Context(), p)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "previews": previews})
			return
		}
		c.JSON(http.StatusOK, gin.H{"previews": previews})
	}
}

// HandleApplyPlan executes a structured edit plan.
func HandleApplyPlan(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		p, err := plan.ParsePlan(body)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		outcome, err := svc.ApplyPlan(c.Request.Context(), p)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "outcome": outcome})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// HandleListProposals returns the stack oldest-first.
func HandleListProposals(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"proposals": svc.Proposals().List()})
	}
}

// HandleGetProposal returns one entry.
func HandleGetProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := svc.Proposals().Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// HandleCreateProposal stages a patch as a pending proposal. When the patch
// is empty and a prompt is present, the generator produces one.
func HandleCreateProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proposeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if req.Patch == "" {
			if req.Prompt == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "patch or prompt is required"})
				return
			}
			entry, err := svc.ProposeFromPrompt(c.Request.Context(), req.Prompt, boolConfirm(req.ApproveEvict))
			if err != nil {
				status := http.StatusBadGateway
				if errors.Is(err, proposal.ErrCapacity) {
					status = http.StatusConflict
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, entry)
			return
		}

		entry, _, err := svc.BuildDiffProposal(c.Request.Context(), req.Prompt, req.Patch)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if err := svc.AdmitProposal(entry, boolConfirm(req.ApproveEvict)); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// HandleApplyProposal applies a pending proposal.
func HandleApplyProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req applyProposalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		snapshot, err := svc.ApplyProposal(c.Request.Context(), c.Param("id"), boolConfirm(req.ApproveDataLoss))
		if err != nil {
			status := http.StatusConflict
			if errors.Is(err, proposal.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error(), "snapshot": snapshot})
			return
		}
		c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
	}
}

// HandleRevertProposal undoes an applied proposal.
func HandleRevertProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, outcome, err := svc.RevertProposal(c.Request.Context(), c.Param("id"))
		if err != nil {
			status := http.StatusConflict
			if errors.Is(err, proposal.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"snapshot": snapshot, "outcome": outcome})
	}
}

// HandleDiscardProposal cancels a pending proposal.
func HandleDiscardProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Proposals().Discard(c.Param("id")); err != nil {
			status := http.StatusConflict
			if errors.Is(err, proposal.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "discarded"})
	}
}

// HandleActivateProposal selects the active proposal for review.
func HandleActivateProposal(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Proposals().SetActive(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "active"})
	}
}

// HandleVerify runs the verification pipeline once.
func HandleVerify(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.Verify(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleVerifyRepair runs verification with the bounded auto-repair loop.
func HandleVerifyRepair(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req repairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		outcome, err := svc.VerifyWithRepair(c.Request.Context(), req.TouchedFiles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "outcome": outcome})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// HandleHistory returns recent events, newest first.
func HandleHistory(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": svc.History().Recent(100)})
	}
}
