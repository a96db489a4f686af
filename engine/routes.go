// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes binds the engine's HTTP surface onto a gin router.
func SetupRoutes(router *gin.Engine, svc *Service) {
	router.GET("/health", HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		diffs := v1.Group("/diff")
		{
			diffs.POST("/preview", HandlePreviewDiff(svc))
			diffs.POST("/apply", HandleApplyDiff(svc))
			diffs.POST("/revert", HandleRevert(svc))
		}

		plans := v1.Group("/plan")
		{
			plans.POST("/preview", HandlePreviewPlan(svc))
			plans.POST("/apply", HandleApplyPlan(svc))
		}

		proposals := v1.Group("/proposals")
		{
			proposals.GET("", HandleListProposals(svc))
			proposals.POST("", HandleCreateProposal(svc))
			proposals.GET("/:id", HandleGetProposal(svc))
			proposals.POST("/:id/apply", HandleApplyProposal(svc))
			proposals.POST("/:id/revert", HandleRevertProposal(svc))
			proposals.POST("/:id/discard", HandleDiscardProposal(svc))
			proposals.POST("/:id/activate", HandleActivateProposal(svc))
		}

		v1.POST("/verify", HandleVerify(svc))
		v1.POST("/verify/repair", HandleVerifyRepair(svc))
		v1.GET("/history", HandleHistory(svc))
	}
}
