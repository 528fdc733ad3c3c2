package webserver

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/privyballot/privyballot-sync/src/shared/codec"
	"github.com/privyballot/privyballot-sync/src/shared/dao"
	"github.com/privyballot/privyballot-sync/src/shared/fhe"
	"github.com/privyballot/privyballot-sync/src/shared/ipfs"
	"github.com/privyballot/privyballot-sync/src/shared/ledger"
	"github.com/privyballot/privyballot-sync/src/shared/overlay"
)

const (
	revealPollAttempts = 10
	revealPollInterval = 3 * time.Second
)

type Proposals struct {
	ledger    ledger.Client
	contents  ipfs.Store
	overlay   *overlay.Store
	codec     *codec.Codec
	sync      *dao.Synchronizer
	reveal    *dao.Coordinator
	encryptor fhe.Encryptor
	contract  common.Address
}

func NewProposals(lc ledger.Client, contents ipfs.Store, ov *overlay.Store, cd *codec.Codec, sync *dao.Synchronizer, reveal *dao.Coordinator, enc fhe.Encryptor, contract common.Address) Proposals {
	return Proposals{
		ledger:    lc,
		contents:  contents,
		overlay:   ov,
		codec:     cd,
		sync:      sync,
		reveal:    reveal,
		encryptor: enc,
		contract:  contract,
	}
}

// rejectionStatus maps a contract revert to the HTTP status the caller can
// act on. The reason string is passed through verbatim.
func rejectionStatus(rej *ledger.Rejection) int {
	switch rej.Reason {
	case ledger.ReasonAlreadyVoted, ledger.ReasonDecryptionPending:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (p Proposals) List(c *gin.Context) {
	views := p.sync.Sync(c.Request.Context(), c.GetString("addr"), dao.Full)
	if views == nil {
		views = []dao.ProposalView{}
	}
	c.JSON(http.StatusOK, gin.H{"proposals": views})
}

func (p Proposals) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad proposal id"})
		return
	}
	for _, v := range p.sync.Sync(c.Request.Context(), c.GetString("addr"), dao.Full) {
		if v.ID == id {
			c.JSON(http.StatusOK, v)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
}

func (p Proposals) Status(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad proposal id"})
		return
	}
	status, err := p.sync.Status(c.Request.Context(), id)
	if errors.Is(err, dao.ErrThrottled) {
		c.JSON(http.StatusTooManyRequests, gin.H{"err": "try again shortly"})
		return
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (p Proposals) Create(c *gin.Context) {
	var req struct {
		Title           string   `json:"title" binding:"required,max=200"`
		Description     string   `json:"description" binding:"max=10000"`
		Options         []string `json:"options" binding:"required,min=2"`
		DurationSeconds uint64   `json:"durationSeconds" binding:"required"`
		Tags            []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	metadata := &ipfs.ProposalMetadata{
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
		Creator:     c.GetString("addr"),
		CreatedAt:   time.Now().Unix(),
		Tags:        req.Tags,
	}
	metadata.Sanitize()
	if err := metadata.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	address, err := p.contents.Put(c.Request.Context(), metadata)
	if err != nil {
		log.Printf("proposal create: metadata upload: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"err": "metadata upload failed"})
		return
	}

	field, err := p.codec.Encode(address)
	if err != nil {
		log.Printf("proposal create: encode %s: %v", address, err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": "identifier encoding failed"})
		return
	}

	id, txHash, err := p.ledger.CreateProposal(c.Request.Context(), field, req.DurationSeconds)
	if err != nil {
		if rej, ok := ledger.AsRejection(err); ok {
			c.JSON(rejectionStatus(rej), gin.H{"err": rej.Reason})
			return
		}
		log.Printf("proposal create: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"err": "transaction failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":             id,
		"txHash":         txHash.Hex(),
		"contentAddress": address,
	})
}

func (p Proposals) Vote(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad proposal id"})
		return
	}
	var req struct {
		Choice string `json:"choice" binding:"required,oneof=yes no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	addr := c.GetString("addr")

	encrypted, err := p.encryptor.EncryptBool(c.Request.Context(), req.Choice == overlay.ChoiceYes, p.contract, common.HexToAddress(addr))
	if err != nil {
		log.Printf("vote %d: encrypt for %s: %v", id, addr, err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": "encryption failed"})
		return
	}

	txHash, err := p.ledger.Vote(c.Request.Context(), id, encrypted.Handle, encrypted.Proof)
	if err != nil {
		if rej, ok := ledger.AsRejection(err); ok {
			c.JSON(rejectionStatus(rej), gin.H{"err": rej.Reason})
			return
		}
		log.Printf("vote %d for %s: %v", id, addr, err)
		c.JSON(http.StatusBadGateway, gin.H{"err": "transaction failed"})
		return
	}

	if err := p.overlay.RecordVote(id, addr, req.Choice); err != nil && !errors.Is(err, overlay.ErrAlreadyVoted) {
		// The chain accepted the vote; a failed local record only costs
		// the optimistic hasVoted until the next sync confirms it.
		log.Printf("vote %d for %s: record locally: %v", id, addr, err)
	}

	c.JSON(http.StatusCreated, gin.H{"txHash": txHash.Hex()})
}

func (p Proposals) Reveal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad proposal id"})
		return
	}

	txHash, err := p.reveal.RequestReveal(c.Request.Context(), id)
	if err != nil {
		if rej, ok := ledger.AsRejection(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"err": rej.Reason})
			return
		}
		log.Printf("reveal %d: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"err": "transaction failed"})
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, gin.H{"txHash": txHash.Hex(), "status": "pending"})
		return
	}

	result, err := p.reveal.PollUntilRevealed(c.Request.Context(), id, revealPollAttempts, revealPollInterval)
	if errors.Is(err, dao.ErrStillPending) {
		c.JSON(http.StatusAccepted, gin.H{"txHash": txHash.Hex(), "status": "pending"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": txHash.Hex(), "status": "revealed", "yes": result.Yes, "no": result.No})
}

// Delete hides a proposal for the caller only. Nothing on chain changes.
func (p Proposals) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad proposal id"})
		return
	}
	if err := p.overlay.MarkDeleted(id, c.GetString("addr")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Reset clears the caller's local overlay: votes and deletion marks. The
// ledger re-populates confirmed votes on the next sync.
func (p Proposals) Reset(c *gin.Context) {
	if err := p.overlay.Reset(c.GetString("addr")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
