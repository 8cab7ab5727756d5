package market

import (
	"errors"

	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/orderbook"
	"github.com/xtrntr/tokenmarket/internal/referral"
)

var (
	// ErrAlreadyInitialized is returned when the first round was already opened
	ErrAlreadyInitialized = errors.New("marketplace already initialized")
	// ErrNotInitialized is returned by any round operation before Initialize
	ErrNotInitialized = errors.New("marketplace not initialized")
	// ErrNotOwner is returned when a restricted operation is called by someone
	// other than the owner
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrZeroPrice is returned when opening the marketplace with a zero price
	ErrZeroPrice = errors.New("start price must be positive")
	// ErrNotSaleRound is returned by sale operations during a trade round
	ErrNotSaleRound = errors.New("not a sale round")
	// ErrNotTradeRound is returned by order operations during a sale round
	ErrNotTradeRound = errors.New("not a trade round")
	// ErrRoundTooYoung is returned when changing round before its duration elapsed
	ErrRoundTooYoung = errors.New("round duration not elapsed")
	// ErrRoundNotFound is returned for unknown round ids
	ErrRoundNotFound = errors.New("round not found")
	// ErrInsufficientPayment is returned when the paid value doesn't cover the cost
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrSupplyExceeded is returned when buying more than the round has left
	ErrSupplyExceeded = errors.New("amount exceeds round supply")
	// ErrDustAmount is returned when an amount is too small to cost anything
	ErrDustAmount = errors.New("amount too small to be priced")
	// ErrPaused is returned by trading operations while the marketplace is paused
	ErrPaused = errors.New("marketplace is paused")
	// ErrNotPaused is returned when unpausing a running marketplace
	ErrNotPaused = errors.New("marketplace is not paused")
	// ErrEscrowShortfall is returned when marketplace custody can't cover the
	// escrow of the open orders
	ErrEscrowShortfall = errors.New("custody does not cover escrowed tokens")

	// ErrInvalidAmount is returned for amounts with a fractional smallest unit
	ErrInvalidAmount = ledger.ErrInvalidAmount

	ErrZeroAmount         = orderbook.ErrZeroAmount
	ErrZeroCost           = orderbook.ErrZeroCost
	ErrOrderNotFound      = orderbook.ErrOrderNotFound
	ErrOrderClosed        = orderbook.ErrOrderClosed
	ErrOrderAlreadyClosed = orderbook.ErrOrderAlreadyClosed
	ErrNotOrderOwner      = orderbook.ErrNotOrderOwner
	ErrSelfTrade          = orderbook.ErrSelfTrade
	ErrFillExceedsOrder   = orderbook.ErrFillExceedsOrder

	ErrSelfReferral      = referral.ErrSelfReferral
	ErrAlreadyRegistered = referral.ErrAlreadyRegistered
)
