package core

// NextReceiptNumber returns the lowest number in the book's inclusive range
// that is not in used. Numbers freed by deleted receipts are handed out again
// before any higher number, so this is gap-filling rather than a counter.
//
// The function is pure; callers serialize the read-allocate-write sequence
// per book themselves.
func NextReceiptNumber(book ReceiptBook, used map[int64]struct{}) (int64, error) {
	for n := book.StartingReceiptNumber; n <= book.EndingReceiptNumber; n++ {
		if _, taken := used[n]; !taken {
			return n, nil
		}
	}
	return 0, &RangeExhaustedError{BookID: book.ID}
}

// CheckReceiptNumber validates a caller-supplied number against the book.
func CheckReceiptNumber(book ReceiptBook, n int64, used map[int64]struct{}) error {
	if !book.Contains(n) {
		return ErrOutOfRange
	}
	if _, taken := used[n]; taken {
		return ErrDuplicateNumber
	}
	return nil
}

// NumberSet builds the lookup set used by the allocator.
func NumberSet(numbers []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	return set
}
