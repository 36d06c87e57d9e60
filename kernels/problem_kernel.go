package kernels

// ProblemKernel evaluates the manufactured problem for every interior cell.
// Boxes map to the outer @outer loop, k planes to the inner @outer loop, and
// the (i,j) cells of a plane to @inner work items. The preamble supplies DIM,
// GHOSTS, JSTRIDE, KSTRIDE, VARIABLE_COEFFICIENT, SHAPE_SHIFT, the BETA_*
// constants, the boxLow table and the *_PART macros.
const ProblemKernel = `
void evaluateBeta(const real_t x, const real_t y, const real_t z,
                  real_t *B, real_t *Bx, real_t *By, real_t *Bz) {
    const real_t dx = x - BETA_CENTER;
    const real_t dy = y - BETA_CENTER;
    const real_t dz = z - BETA_CENTER;
    const real_t r = sqrt(dx*dx + dy*dy + dz*dz);
    const real_t th = tanh(BETA_C3*(r - BETA_RADIUS));
    *B = BETA_C1 + BETA_C2*th;
    *Bx = REAL_ZERO;
    *By = REAL_ZERO;
    *Bz = REAL_ZERO;
    if (r > REAL_ZERO) {
        const real_t dBdr = BETA_C2*BETA_C3*(REAL_ONE - th*th);
        *Bx = dBdr*dx/r;
        *By = dBdr*dy/r;
        *Bz = dBdr*dz/r;
    }
}

void evaluateShape(const real_t t, real_t *w, real_t *dw, real_t *d2w) {
    const real_t t2 = t*t;
    *w   = t2*t2 - 2.0*t2*t + t2 + SHAPE_SHIFT;
    *dw  = 4.0*t2*t - 6.0*t2 + 2.0*t;
    *d2w = 12.0*t2 - 12.0*t + 2.0;
}

@kernel void initializeProblem(
    const int_t* K,
    real_t* alpha_global,   const int_t* alpha_offsets,
    real_t* beta_i_global,  const int_t* beta_i_offsets,
    real_t* beta_j_global,  const int_t* beta_j_offsets,
    real_t* beta_k_global,  const int_t* beta_k_offsets,
    real_t* u_exact_global, const int_t* u_exact_offsets,
    real_t* f_global,       const int_t* f_offsets,
    const real_t h,
    const real_t a,
    const real_t b
) {
    for (int box = 0; box < NPART; ++box; @outer(1)) {
        for (int k = 0; k < DIM; ++k; @outer(0)) {
            for (int j = 0; j < DIM; ++j; @inner(1)) {
                for (int i = 0; i < DIM; ++i; @inner(0)) {
                    real_t* alpha   = alpha_PART(box);
                    real_t* beta_i  = beta_i_PART(box);
                    real_t* beta_j  = beta_j_PART(box);
                    real_t* beta_k  = beta_k_PART(box);
                    real_t* u_exact = u_exact_PART(box);
                    real_t* f       = f_PART(box);

                    const int ijk = (i+GHOSTS) + (j+GHOSTS)*JSTRIDE + (k+GHOSTS)*KSTRIDE;
                    const real_t x = h*((real_t)(i + (int)boxLow[box][0]) + 0.5);
                    const real_t y = h*((real_t)(j + (int)boxLow[box][1]) + 0.5);
                    const real_t z = h*((real_t)(k + (int)boxLow[box][2]) + 0.5);

                    real_t A = REAL_ONE;
                    real_t B = REAL_ONE, Bx = REAL_ZERO, By = REAL_ZERO, Bz = REAL_ZERO;
                    real_t Bi = REAL_ONE, Bj = REAL_ONE, Bk = REAL_ONE;
#if VARIABLE_COEFFICIENT
                    real_t gx, gy, gz;
                    evaluateBeta(x - 0.5*h, y, z, &Bi, &gx, &gy, &gz);
                    evaluateBeta(x, y - 0.5*h, z, &Bj, &gx, &gy, &gz);
                    evaluateBeta(x, y, z - 0.5*h, &Bk, &gx, &gy, &gz);
                    evaluateBeta(x, y, z, &B, &Bx, &By, &Bz);
#endif
                    real_t X, Xx, Xxx, Y, Yy, Yyy, Z, Zz, Zzz;
                    evaluateShape(x, &X, &Xx, &Xxx);
                    evaluateShape(y, &Y, &Yy, &Yyy);
                    evaluateShape(z, &Z, &Zz, &Zzz);

                    const real_t U   = X*Y*Z;
                    const real_t Ux  = Xx*Y*Z;
                    const real_t Uy  = X*Yy*Z;
                    const real_t Uz  = X*Y*Zz;
                    const real_t Uxx = Xxx*Y*Z;
                    const real_t Uyy = X*Yyy*Z;
                    const real_t Uzz = X*Y*Zzz;

                    alpha[ijk]   = A;
                    beta_i[ijk]  = Bi;
                    beta_j[ijk]  = Bj;
                    beta_k[ijk]  = Bk;
                    u_exact[ijk] = U;
                    f[ijk] = a*A*U - b*((Bx*Ux + By*Uy + Bz*Uz) + B*(Uxx + Uyy + Uzz));
                }
            }
        }
    }
}
`
