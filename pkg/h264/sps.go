package h264

import "fmt"

// SPS - only fields needed to describe the stream
type SPS struct {
	Profile byte
	Level   byte
	Width   int
	Height  int
}

func (s *SPS) String() string {
	return fmt.Sprintf("profile=%d level=%d %dx%d", s.Profile, s.Level, s.Width, s.Height)
}

// DecodeSPS parses SPS NAL unit (with header byte, without start code)
// up to frame cropping. VUI is skipped.
func DecodeSPS(nalu []byte) (*SPS, error) {
	if len(nalu) < 4 {
		return nil, ErrShort
	}
	if nalu[0]&0x1F != NALUTypeSPS {
		return nil, fmt.Errorf("h264: not SPS: %s", TypeName(nalu[0]&0x1F))
	}

	s := &SPS{Profile: nalu[1], Level: nalu[3]}

	r := newBitReader(unescapeRBSP(nalu[4:]))

	if err := s.decode(r); err != nil {
		return nil, fmt.Errorf("h264: decode SPS: %w", err)
	}

	return s, nil
}

func (s *SPS) decode(r *bitReader) error {
	// seq_parameter_set_id
	if _, err := r.ReadUE(); err != nil {
		return err
	}

	chromaFormat := uint32(1)

	switch s.Profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		var err error
		if chromaFormat, err = r.ReadUE(); err != nil {
			return err
		}

		lists := 8
		if chromaFormat == 3 {
			lists = 12
			// separate_colour_plane_flag
			if _, err = r.ReadBit(); err != nil {
				return err
			}
		}

		// bit_depth_luma_minus8, bit_depth_chroma_minus8
		for i := 0; i < 2; i++ {
			if _, err = r.ReadUE(); err != nil {
				return err
			}
		}

		// qpprime_y_zero_transform_bypass_flag, seq_scaling_matrix_present_flag
		flags, err := r.ReadBits(2)
		if err != nil {
			return err
		}

		if flags&1 != 0 {
			for i := 0; i < lists; i++ {
				present, err := r.ReadBit()
				if err != nil {
					return err
				}
				if present == 0 {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err = skipScalingList(r, size); err != nil {
					return err
				}
			}
		}
	}

	// log2_max_frame_num_minus4
	if _, err := r.ReadUE(); err != nil {
		return err
	}

	pocType, err := r.ReadUE()
	if err != nil {
		return err
	}

	switch pocType {
	case 0:
		// log2_max_pic_order_cnt_lsb_minus4
		if _, err = r.ReadUE(); err != nil {
			return err
		}
	case 1:
		// delta_pic_order_always_zero_flag
		if _, err = r.ReadBit(); err != nil {
			return err
		}
		// offset_for_non_ref_pic, offset_for_top_to_bottom_field
		for i := 0; i < 2; i++ {
			if _, err = r.ReadSE(); err != nil {
				return err
			}
		}
		cycle, err := r.ReadUE()
		if err != nil {
			return err
		}
		for i := uint32(0); i < cycle; i++ {
			if _, err = r.ReadSE(); err != nil {
				return err
			}
		}
	}

	// num_ref_frames
	if _, err = r.ReadUE(); err != nil {
		return err
	}
	// gaps_in_frame_num_value_allowed_flag
	if _, err = r.ReadBit(); err != nil {
		return err
	}

	widthMbs, err := r.ReadUE()
	if err != nil {
		return err
	}
	heightMapUnits, err := r.ReadUE()
	if err != nil {
		return err
	}

	frameMbsOnly, err := r.ReadBit()
	if err != nil {
		return err
	}
	if frameMbsOnly == 0 {
		// mb_adaptive_frame_field_flag
		if _, err = r.ReadBit(); err != nil {
			return err
		}
	}

	// direct_8x8_inference_flag
	if _, err = r.ReadBit(); err != nil {
		return err
	}

	var crop [4]uint32 // left, right, top, bottom

	cropping, err := r.ReadBit()
	if err != nil {
		return err
	}
	if cropping != 0 {
		for i := range crop {
			if crop[i], err = r.ReadUE(); err != nil {
				return err
			}
		}
	}

		cropX, cropY := uint32(2), uint32(2)*(2-uint32(frameMbsOnly))
	switch chromaFormat {
	case 0, 3:
		cropX, cropY = 1, 2-uint32(frameMbsOnly)
	case 2:
		cropY = 2 - uint32(frameMbsOnly)
	}

	width := 16*(widthMbs+1) - cropX*(crop[0]+crop[1])
	height := 16*(heightMapUnits+1)*(2-uint32(frameMbsOnly)) - cropY*(crop[2]+crop[3])

	s.Width = int(width)
	s.Height = int(height)

	return nil
}

func skipScalingList(r *bitReader, size int) error {
	last, next := int32(8), int32(8)
	for j := 0; j < size; j++ {
		if next != 0 {
			delta, err := r.ReadSE()
			if err != nil {
				return err
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}
