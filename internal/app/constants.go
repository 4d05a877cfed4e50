package app

// MaxHistoryRecords caps how many archived tournaments one history query returns.
const MaxHistoryRecords = 20
